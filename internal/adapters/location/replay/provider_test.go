package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
	"github.com/bft-labs/zonecast/internal/ports"
)

const walk = `# lion's head fountain approach
{"latitude":40.427861,"longitude":-86.913974,"timestamp":1715003400}
{"latitude":40.426151,"longitude":-86.913974,"timestamp":1715003403}
not a fix
{"latitude":40.426151,"longitude":-86.913974,"timestamp":1715003406}

{"latitude":40.427861,"longitude":-86.913974,"timestamp":1715003409}
`

func writeWalk(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walk.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func collect(t *testing.T, ch <-chan domain.LocationSample) []domain.LocationSample {
	t.Helper()
	var out []domain.LocationSample
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-timeout:
			t.Fatal("replay did not finish")
			return nil
		}
	}
}

func TestProvider_Subscribe(t *testing.T) {
	p := New(Config{Path: writeWalk(t, walk)}, nil)
	if err := p.RequestPermission(context.Background()); err != nil {
		t.Fatalf("RequestPermission: %v", err)
	}

	ch, err := p.Subscribe(context.Background(), ports.SubscribeConfig{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	got := collect(t, ch)
	if len(got) != 4 {
		t.Fatalf("got %d samples, want 4 (comments, blanks and bad lines skipped)", len(got))
	}
	if got[1].Coordinate.Lat != 40.426151 {
		t.Errorf("sample 1 = %+v", got[1])
	}
	if !got[3].Timestamp.Equal(time.Unix(1715003409, 0)) {
		t.Errorf("sample 3 timestamp = %v", got[3].Timestamp)
	}
}

func TestProvider_SubscribeFiltered(t *testing.T) {
	p := New(Config{Path: writeWalk(t, walk)}, nil)
	ch, err := p.Subscribe(context.Background(), ports.SubscribeConfig{MinDistanceMeters: 5})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// The third fix repeats the second position.
	if got := collect(t, ch); len(got) != 3 {
		t.Errorf("got %d samples, want 3", len(got))
	}
}

func TestProvider_Pacing(t *testing.T) {
	content := `{"latitude":1,"longitude":1,"timestamp":100}
{"latitude":1,"longitude":1,"timestamp":101}
`
	// 1s recorded gap at 20x speed
	p := New(Config{Path: writeWalk(t, content), Speed: 20}, nil)
	start := time.Now()
	ch, err := p.Subscribe(context.Background(), ports.SubscribeConfig{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	collect(t, ch)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("playback took %v, want about 50ms", elapsed)
	}
}

func TestProvider_Cancel(t *testing.T) {
	content := `{"latitude":1,"longitude":1,"timestamp":100}
{"latitude":1,"longitude":1,"timestamp":1000}
`
	p := New(Config{Path: writeWalk(t, content), Speed: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Subscribe(ctx, ports.SubscribeConfig{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	<-ch
	cancel()
	if got := collect(t, ch); len(got) != 0 {
		t.Errorf("got %d samples after cancel", len(got))
	}
}

func TestProvider_Errors(t *testing.T) {
	p := New(Config{Path: filepath.Join(t.TempDir(), "missing.jsonl")}, nil)
	if err := p.RequestPermission(context.Background()); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("missing file = %v, want ErrProviderUnavailable", err)
	}
	if _, err := p.Subscribe(context.Background(), ports.SubscribeConfig{}); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("Subscribe on missing file = %v, want ErrProviderUnavailable", err)
	}

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced")
	}
	path := writeWalk(t, walk)
	if err := os.Chmod(path, 0); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	p = New(Config{Path: path}, nil)
	if err := p.RequestPermission(context.Background()); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("unreadable file = %v, want ErrPermissionDenied", err)
	}
}
