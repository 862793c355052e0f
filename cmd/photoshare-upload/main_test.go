package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/VascoOnEarth/PhotoShare/upload"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("PHOTOSHARE_SERVER", "")
	t.Setenv("PHOTOSHARE_TOKEN", "")

	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    options
		wantErr bool
	}{
		{
			name: "flags",
			args: []string{"-server", "https://photos.example.com", "-token", "abc", "-description", "trip", "a.jpg", "b.png"},
			want: options{Server: "https://photos.example.com", Token: "abc", Description: "trip", Files: []string{"a.jpg", "b.png"}},
		},
		{
			name: "env fallback",
			args: []string{"a.jpg"},
			env:  map[string]string{"PHOTOSHARE_SERVER": "https://env.example.com", "PHOTOSHARE_TOKEN": "from-env"},
			want: options{Server: "https://env.example.com", Token: "from-env", Files: []string{"a.jpg"}},
		},
		{
			name: "default server",
			args: []string{"-token", "abc", "a.jpg"},
			want: options{Server: "http://localhost:3002", Token: "abc", Files: []string{"a.jpg"}},
		},
		{name: "no token", args: []string{"a.jpg"}, wantErr: true},
		{name: "no files", args: []string{"-token", "abc"}, wantErr: true},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Server != tt.want.Server || got.Token != tt.want.Token || got.Description != tt.want.Description {
				t.Errorf("mismatch: got %+v, want %+v", got, tt.want)
			}
			if len(got.Files) != len(tt.want.Files) {
				t.Errorf("files mismatch: got %v, want %v", got.Files, tt.want.Files)
			}
		})
	}
}

func TestRun_CountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	notImage := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notImage, []byte("just text"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	opts := options{Files: []string{notImage, filepath.Join(dir, "missing.jpg")}}
	if failed := run(context.Background(), upload.NewClient(srv.URL, "token"), opts); failed != 2 {
		t.Errorf("failed mismatch: got %d, want 2", failed)
	}
}
