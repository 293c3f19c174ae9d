package stt

import (
	"bytes"
	"encoding/binary"
	"io"
)

// EncodeWAV wraps mono PCM16 samples in a canonical 44-byte WAV header.
func EncodeWAV(samples []int16, rate int) []byte {
	var buf bytes.Buffer
	WriteWAV(&buf, samples, rate)
	return buf.Bytes()
}

// WriteWAV writes mono PCM16 samples as a WAV file to w.
func WriteWAV(w io.Writer, samples []int16, rate int) error {
	dataLen := uint32(len(samples) * 2)
	header := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLen,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataLen,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
