package security

import (
	"testing"
	"time"
)

func TestValidateUserURL(t *testing.T) {
	guard := NewURLGuard()

	tests := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{"valid https", "https://cdn.bsky.app/img/avatar.jpg", false},
		{"valid http", "http://example.com/avatar.png", false},
		{"empty", "", true},
		{"no scheme", "example.com/avatar.png", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"file scheme", "file:///etc/passwd", true},
		{"data scheme", "data:text/html,x", true},
		{"localhost", "http://localhost/avatar.png", true},
		{"localhost mixed case", "http://LocalHost/x", true},
		{"loopback IP", "http://127.0.0.1/x", true},
		{"private 10.x", "http://10.0.0.1/x", true},
		{"private 172.16.x", "http://172.16.0.1/x", true},
		{"private 192.168.x", "http://192.168.1.1/x", true},
		{"metadata IP", "http://169.254.169.254/latest/meta-data", true},
		{"current network", "http://0.0.0.0/x", true},
		{"ipv6 loopback", "http://[::1]/x", true},
		{"public IP", "http://93.184.216.34/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateUserURL(tt.rawURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserURL(%q) error = %v, wantErr %v", tt.rawURL, err, tt.wantErr)
			}
		})
	}
}

func TestNewOutboundClient(t *testing.T) {
	guard := NewURLGuard()

	client := guard.NewOutboundClient(10 * time.Second)
	if client == nil {
		t.Fatal("expected a client")
	}
	if client.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", client.Timeout)
	}
}

func TestTextSanitizer(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "川沿いの静かな街区です", "川沿いの静かな街区です"},
		{"empty", "", ""},
		{"strips script", `before<script>alert(1)</script>after`, "beforeafter"},
		{"strips tags", "<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"strips img", `<img src="https://x/y.png">photo`, "photo"},
		{"trims whitespace", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()

	input := `<p>hello <script>x</script>world</p>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)
	if once != twice {
		t.Errorf("sanitize must be idempotent: %q != %q", once, twice)
	}
}
