package hw

// LED addresses around the wall perimeter, grouped by side.
var (
	LeftLEDs   = []string{"A1", "A2", "A3"}
	TopLEDs    = []string{"B0", "C0", "D0", "E0"}
	RightLEDs  = []string{"F1", "F2", "F3"}
	BottomLEDs = []string{"E4", "D4", "C4", "B4"}
)

// AllLEDs lists every LED address.
var AllLEDs = []string{
	"A1", "A2", "A3",
	"B0", "B4",
	"C0", "C4",
	"D0", "D4",
	"E0", "E4",
	"F1", "F2", "F3",
}

// AllMotors lists every motor address.
var AllMotors = []string{
	"B1", "C1", "D1", "E1",
	"B2", "C2", "D2", "E2",
	"B3", "C3", "D3", "E3",
}

// DefaultMap returns a map of the standard wall: one light board driving
// all fourteen LEDs, one board per motor, and the radar board.
// Ports are left empty for discovery.
func DefaultMap() Map {
	mapping := make(map[string]int, len(AllLEDs))
	for i, addr := range AllLEDs {
		mapping[addr] = i
	}

	m := Map{{Type: TypeLight, BoardName: "LIGHTS", Mapping: mapping}}
	for _, addr := range AllMotors {
		m = append(m, Entry{Type: TypeMotor, BoardName: "MOTOR_" + addr, Address: addr})
	}
	m = append(m, Entry{Type: TypeRadar, BoardName: "PAPA"})
	return m
}
