package addresscodec

import (
	"testing"
)

func TestValidateEVMAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"0xaca6302ecbde40120cb8a08361d8bd461282bd18", true},
		{"0xACA6302ECBDE40120CB8A08361D8BD461282BD18", true},
		{"aca6302ecbde40120cb8a08361d8bd461282bd18", false},
		{"0x123", false},
		{"0xzz", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateEVMAddress(tt.addr); got != tt.want {
			t.Errorf("ValidateEVMAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestValidateSolanaAddress(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"HVEMhZbBXiAn7YnohXpLVdyFfGNvjFPpMgDGiWtu8BgZ", true},
		{"not-base58-!!!", false},
		{"1111111111111111111111111111111", false}, // 31 ones decode to 31 zero bytes, not 32
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateSolanaAddress(tt.addr); got != tt.want {
			t.Errorf("ValidateSolanaAddress(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestEVMAddress_BadKeyLength(t *testing.T) {
	if _, err := EVMAddress([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short private key")
	}
}

func TestSolanaAddress_BadSeedLength(t *testing.T) {
	if _, err := SolanaAddress([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short seed")
	}
}
