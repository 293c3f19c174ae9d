package director

// DefaultGreetings are spoken when a visitor becomes engaged.
var DefaultGreetings = []string{
	"Hello there, it is good to see you.",
	"Welcome. I am glad you are here.",
	"Hi there! Thank you for coming.",
	"Hello. It is nice to share this moment with you.",
	"Hi. Your presence brightens me.",
	"Good to see you. Stay as long as you like.",
	"Hello, I am so glad you are here.",
	"Hi! is good to see you.",
	"Hello my friend. I can sense your presence.",
	"Hello. I am glad you came by.",
}

// DefaultFarewells are spoken when a visitor walks away.
var DefaultFarewells = []string{
	"Goodbye. Come back soon.",
	"Thanks for visiting. Travel safely.",
	"It was good to see you. Don't be a stranger.",
	"I will be here when you return.",
	"Thanks for sharing this moment with me. Goodbye.",
	"Farewell until our paths cross again.",
	"May your path stay bright.",
	"I hope to see you again soon.",
	"Goodbye for now.",
}

// ReadyPhrase is spoken once the installation has started.
const ReadyPhrase = "I'm ready to go now"
