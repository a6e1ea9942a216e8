package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestLimiter_Burst(t *testing.T) {
	config := Config{
		RequestsPerSecond: 1,
		BurstSize:         3,
		Enabled:           true,
	}

	limiter, err := NewLimiter(config)
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	for i := 0; i < config.BurstSize; i++ {
		if !limiter.Allow("127.0.0.1") {
			t.Errorf("Request %d should be allowed", i)
		}
	}

	if limiter.Allow("127.0.0.1") {
		t.Error("Request should be denied after burst exhausted")
	}

	// Keys have independent buckets
	if !limiter.Allow("10.0.0.1") {
		t.Error("Other key should be allowed")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, err := NewLimiter(Config{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	for i := 0; i < 100; i++ {
		if !limiter.Allow("k") {
			t.Fatal("Disabled limiter should allow everything")
		}
	}
	if limiter.Len() != 0 {
		t.Errorf("Disabled limiter tracked %d keys", limiter.Len())
	}
}

func TestLimiter_BoundedKeys(t *testing.T) {
	limiter, err := NewLimiter(Config{
		RequestsPerSecond: 10,
		BurstSize:         1,
		Enabled:           true,
		MaxKeys:           5,
		IdleTTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}

	for i := 0; i < 20; i++ {
		limiter.Allow(fmt.Sprintf("key-%d", i))
	}

	if limiter.Len() > 5 {
		t.Errorf("Limiter tracks %d keys, want at most 5", limiter.Len())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"disabled skips checks", Config{}, false},
		{"zero rate", Config{Enabled: true, BurstSize: 1}, true},
		{"zero burst", Config{Enabled: true, RequestsPerSecond: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	c := Config{Enabled: true, RequestsPerSecond: 1, BurstSize: 1}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if c.MaxKeys != 10000 || c.IdleTTL != 10*time.Minute {
		t.Errorf("Validate() did not fill cleanup defaults: %+v", c)
	}
}
