package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"ipv4", "203.0.113.7", "203.0.113.7", true},
		{"ipv4 with newline", "198.51.100.9\n", "198.51.100.9", true},
		{"ipv6", "2001:db8::1", "2001:db8::1", true},
		{"ipv6 uppercase", "2001:DB8::1", "2001:db8::1", true},
		{"mapped ipv4", "::ffff:203.0.113.7", "203.0.113.7", true},
		{"empty", "   ", "", false},
		{"html", "<html>nope</html>", "", false},
		{"three octets", "10.0.1", "", false},
		{"with port", "203.0.113.7:80", "", false},
		{"cidr", "203.0.113.0/24", "", false},
		{"zone", "fe80::1%eth0", "", false},
		{"two words", "203.0.113.7 203.0.113.8", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeAddress(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.168.1.10 ", "garbage", ""})
	assert.False(t, m.IsEmpty())

	assert.True(t, m.Allow("10.20.30.40"))
	assert.True(t, m.Allow("192.168.1.10"))
	assert.True(t, m.Allow("::ffff:10.1.1.1"))
	assert.False(t, m.Allow("192.168.1.11"))
	assert.False(t, m.Allow("not-an-ip"))

	assert.True(t, NewIPMatcher(nil).IsEmpty())
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/status", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "127.0.0.1", ClientIP(r, false))
	assert.Equal(t, "203.0.113.7", ClientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", ClientIP(r, true))
}
