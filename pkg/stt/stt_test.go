package stt_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/teslashibe/go-lightwall/pkg/stt"
)

func TestEncodeWAV(t *testing.T) {
	data := stt.EncodeWAV([]int16{1, -2, 3}, 16000)

	if len(data) != 44+6 {
		t.Fatalf("len = %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Errorf("bad chunk ids: %q", data[:40])
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 6 {
		t.Errorf("data size = %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(data[46:48])); got != -2 {
		t.Errorf("second sample = %d", got)
	}
}

func TestModelPaths(t *testing.T) {
	if got := stt.ModelPath("./whisper.cpp", "large-v3-turbo"); got != "whisper.cpp/models/ggml-large-v3-turbo.bin" {
		t.Errorf("ModelPath = %s", got)
	}
	if got := stt.CLIPath("/opt/whisper.cpp"); got != "/opt/whisper.cpp/build/bin/whisper-cli" {
		t.Errorf("CLIPath = %s", got)
	}
}

func TestWhisperCLITranscribe(t *testing.T) {
	dir := t.TempDir()
	var gotName string
	var gotArgs []string
	run := func(ctx context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		wav := args[2]
		if info, err := os.Stat(wav); err != nil || info.Size() != 44+3200 {
			t.Errorf("wav not written: %v", err)
		}
		return os.WriteFile(wav+".txt", []byte("\n Hello there,\n wall. \n"), 0o644)
	}

	w := stt.NewWhisperCLI("models/ggml-base.bin", stt.WithCLI("whisper-cli"), stt.WithWorkDir(dir), stt.WithRunner(run))
	text, err := w.Transcribe(context.Background(), make([]int16, 1600), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello there, wall." {
		t.Errorf("text = %q", text)
	}
	if gotName != "whisper-cli" || gotArgs[0] != "-m" || gotArgs[1] != "models/ggml-base.bin" || gotArgs[3] != "--output-txt" {
		t.Errorf("ran %s %v", gotName, gotArgs)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestWhisperCLIErrors(t *testing.T) {
	dir := t.TempDir()
	ok := func(ctx context.Context, name string, args ...string) error { return nil }

	w := stt.NewWhisperCLI("m.bin", stt.WithWorkDir(dir), stt.WithRunner(ok))
	if _, err := w.Transcribe(context.Background(), nil, 16000); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("empty audio = %v", err)
	}
	if _, err := w.Transcribe(context.Background(), make([]int16, 10), 16000); err == nil {
		t.Error("missing transcript file should fail")
	}

	noModel := stt.NewWhisperCLI("", stt.WithWorkDir(dir), stt.WithRunner(ok))
	if _, err := noModel.Transcribe(context.Background(), make([]int16, 10), 16000); !errors.Is(err, stt.ErrNoModel) {
		t.Errorf("no model = %v", err)
	}

	boom := errors.New("exit status 1")
	failing := stt.NewWhisperCLI("m.bin", stt.WithWorkDir(dir), stt.WithRunner(func(context.Context, string, ...string) error {
		return boom
	}))
	if _, err := failing.Transcribe(context.Background(), make([]int16, 10), 16000); !errors.Is(err, boom) {
		t.Errorf("runner error = %v", err)
	}
}

func TestHTTPTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if !strings.HasPrefix(string(data), "RIFF") || len(data) != 44+64 {
			t.Errorf("upload = %d bytes", len(data))
		}
		json.NewEncoder(w).Encode(map[string]string{"text": " good evening "})
	}))
	defer server.Close()

	h := stt.NewHTTP(server.URL+"/v1/", stt.WithAPIKey("sk-test"))
	text, err := h.Transcribe(context.Background(), make([]int16, 32), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "good evening" {
		t.Errorf("text = %q", text)
	}
}

func TestHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := stt.NewHTTP(server.URL).Transcribe(context.Background(), make([]int16, 8), 16000)
	var apiErr *stt.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.StatusCode != 503 || !apiErr.IsRetryable() || apiErr.Message != "overloaded" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestMock(t *testing.T) {
	m := stt.NewMock("hello", "again")
	ctx := context.Background()

	for _, want := range []string{"hello", "again", "again"} {
		got, err := m.Transcribe(ctx, make([]int16, 4), 16000)
		if err != nil || got != want {
			t.Errorf("Transcribe = %q, %v; want %q", got, err, want)
		}
	}
	if m.CallCount() != 3 || m.Calls()[0].Samples != 4 {
		t.Errorf("calls = %+v", m.Calls())
	}

	m.WithError(errors.New("down"))
	if _, err := m.Transcribe(ctx, nil, 16000); err == nil {
		t.Error("expected error")
	}
	m.Reset()
	if m.CallCount() != 0 {
		t.Error("Reset should clear calls")
	}
}
