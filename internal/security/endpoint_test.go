package security

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver map[string][]netip.Addr

func (f fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestValidateOriginURL(t *testing.T) {
	resolver := fakeResolver{
		"explorer.example.com": {netip.MustParseAddr("93.184.216.34")},
		"internal.example.com": {netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("10.0.0.7")},
	}

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public host", "https://explorer.example.com/v1", false},
		{"public ip literal", "https://93.184.216.34/v1", false},
		{"ftp scheme", "ftp://explorer.example.com", true},
		{"missing host", "https://", true},
		{"localhost", "http://LOCALHOST:9000", true},
		{"loopback", "http://127.0.0.1/v1", true},
		{"private", "http://10.1.2.3", true},
		{"metadata", "http://169.254.169.254/latest/meta-data", true},
		{"unspecified", "http://0.0.0.0", true},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", true},
		{"any resolved address private", "https://internal.example.com", true},
		{"unresolvable", "https://nowhere.example.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOriginURL(context.Background(), tt.url, resolver)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafeOrigin)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
