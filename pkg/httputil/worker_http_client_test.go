package httputil

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *ClientConfig
		wantTimeout time.Duration
		wantPerHost int
	}{
		{"nil uses defaults", nil, 30 * time.Second, 20},
		{"gmail", GmailClientConfig(), 60 * time.Second, 50},
		{"model", ModelClientConfig(90 * time.Second), 90 * time.Second, 10},
		{"model without timeout", ModelClientConfig(0), 60 * time.Second, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.cfg)
			if c.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", c.Timeout, tt.wantTimeout)
			}
			tr, ok := c.Transport.(*http.Transport)
			if !ok {
				t.Fatalf("Transport = %T, want *http.Transport", c.Transport)
			}
			if tr.MaxIdleConnsPerHost != tt.wantPerHost {
				t.Errorf("MaxIdleConnsPerHost = %d, want %d", tr.MaxIdleConnsPerHost, tt.wantPerHost)
			}
			if tr.ResponseHeaderTimeout != tt.wantTimeout {
				t.Errorf("ResponseHeaderTimeout = %v, want %v", tr.ResponseHeaderTimeout, tt.wantTimeout)
			}
		})
	}
}
