package probe

import "testing"

func TestEncodeBlockDev(t *testing.T) {
	tests := []struct {
		name string
		dev  uint64
		want uint32
	}{
		{"sda1 (8,1)", 8<<20 | 1, 8<<20 | 1},
		{"major/minor mask", (0xFFFF << 20) | 0xFFFFFF, (0xFFF << 20) | 0xFFFFF},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeBlockDev(tt.dev); got != tt.want {
				t.Errorf("EncodeBlockDev(%#x) = %#x, want %#x", tt.dev, got, tt.want)
			}
		})
	}
}

func TestBlockBytesFromSectors(t *testing.T) {
	if got := BlockBytesFromSectors(8); got != 4096 {
		t.Errorf("BlockBytesFromSectors(8) = %d, want 4096", got)
	}
	if got := BlockBytesFromSectors(0); got != 0 {
		t.Errorf("BlockBytesFromSectors(0) = %d, want 0", got)
	}
}

func TestDeriveBlockBytesPrefersExplicit(t *testing.T) {
	if got := DeriveBlockBytes(8, 1000); got != 1000 {
		t.Errorf("DeriveBlockBytes with explicit bytes = %d, want 1000", got)
	}
}

func TestDeriveBlockBytesFallsBackToSectors(t *testing.T) {
	if got := DeriveBlockBytes(8, 0); got != 4096 {
		t.Errorf("DeriveBlockBytes falling back to sectors = %d, want 4096", got)
	}
}
