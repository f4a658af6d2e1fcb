package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# comment\n" +
		"FRONTDESK_TEST_FROM_FILE=loaded\n" +
		"FRONTDESK_TEST_QUOTED=\"front desk\"\n" +
		"export FRONTDESK_TEST_EXPORTED=ok\n" +
		"FRONTDESK_TEST_EXISTING=from_file\n" +
		"=no_key\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("FRONTDESK_TEST_EXISTING", "already_set")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("FRONTDESK_TEST_FROM_FILE")
		os.Unsetenv("FRONTDESK_TEST_QUOTED")
		os.Unsetenv("FRONTDESK_TEST_EXPORTED")
	})

	if got := os.Getenv("FRONTDESK_TEST_FROM_FILE"); got != "loaded" {
		t.Fatalf("FROM_FILE=%q, want %q", got, "loaded")
	}
	if got := os.Getenv("FRONTDESK_TEST_QUOTED"); got != "front desk" {
		t.Fatalf("QUOTED=%q, want %q", got, "front desk")
	}
	if got := os.Getenv("FRONTDESK_TEST_EXPORTED"); got != "ok" {
		t.Fatalf("EXPORTED=%q, want %q", got, "ok")
	}
	if got := os.Getenv("FRONTDESK_TEST_EXISTING"); got != "already_set" {
		t.Fatalf("EXISTING=%q, want existing value preserved", got)
	}
}
