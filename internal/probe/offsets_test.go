package probe

import "testing"

// DetectOffsets depends on the running kernel's BTF, which can't be mocked
// without an interface seam. This only verifies the graceful-degrade path:
// no panic, and the fields that don't depend on BTF are always populated.
func TestDetectOffsetsDoesNotPanic(t *testing.T) {
	off := DetectOffsets(4096, 8<<30)

	if off.PageSize != 4096 {
		t.Errorf("PageSize = %d, want 4096", off.PageSize)
	}
	if off.TotalMemoryBytes != 8<<30 {
		t.Errorf("TotalMemoryBytes = %d, want %d", off.TotalMemoryBytes, uint64(8<<30))
	}
	if off.RssFileIndex != rssFileIndex {
		t.Errorf("RssFileIndex = %d, want %d", off.RssFileIndex, rssFileIndex)
	}
	if off.RssAnonIndex != rssAnonIndex {
		t.Errorf("RssAnonIndex = %d, want %d", off.RssAnonIndex, rssAnonIndex)
	}
	t.Logf("offsets: %s", off.String())
}
