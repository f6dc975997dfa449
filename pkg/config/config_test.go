package config

import (
	"encoding/base64"
	"testing"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestDecodeEncryptionKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{
			name:    "valid 32-byte key",
			key:     validKey(),
			wantErr: false,
		},
		{
			name:    "not base64",
			key:     "%%%not-base64%%%",
			wantErr: true,
		},
		{
			name:    "wrong length",
			key:     base64.StdEncoding.EncodeToString(make([]byte, 16)),
			wantErr: true,
		},
		{
			name:    "empty",
			key:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EncryptionKey: tt.key}
			key, err := cfg.DecodeEncryptionKey()
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeEncryptionKey() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(key) != 32 {
				t.Errorf("DecodeEncryptionKey() returned %d bytes, want 32", len(key))
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     Config{EncryptionKey: validKey(), MaxConcurrentSSH: 16},
			wantErr: false,
		},
		{
			name:    "zero ssh ceiling",
			cfg:     Config{EncryptionKey: validKey(), MaxConcurrentSSH: 0},
			wantErr: true,
		},
		{
			name:    "missing ssh key file",
			cfg:     Config{EncryptionKey: validKey(), MaxConcurrentSSH: 4, SSHKeyPath: "/nonexistent/id_ed25519"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
