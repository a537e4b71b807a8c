package manifest

import (
	"strings"
	"testing"

	"github.com/grafov/m3u8"

	"github.com/yourusername/stream-proxy/internal/classify"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
seg1.ts
#EXTINF:10.0,
/abs/seg2.ts
#EXTINF:10.0,
https://cdn.example/seg3.ts
#EXT-X-ENDLIST
`

func TestRewriteScenarios(t *testing.T) {
	testCases := []struct {
		name   string
		origin string
		line   string
		want   string
	}{
		{"relative segment", "http://a.com/live/x.m3u8", "seg1.ts", "/proxy-stream/http://a.com/live/seg1.ts"},
		{"root relative segment", "http://a.com/live/x.m3u8", "/abs/seg2.ts", "/proxy-stream/http://a.com/abs/seg2.ts"},
		{"absolute segment", "http://a.com/live/x.m3u8", "https://cdn.example/seg3.ts", "/proxy-stream/https://cdn.example/seg3.ts"},
		{"relative child playlist", "http://a.com/live/master.m3u8", "hd/index.m3u8", "/proxy-stream/http://a.com/live/hd/index.m3u8"},
		{"segment with query", "http://a.com/live/x.m3u8", "seg1.ts?token=abc", "/proxy-stream/http://a.com/live/seg1.ts?token=abc"},
		{"origin with query", "http://a.com/live/x.m3u8?token=a/b", "seg1.ts", "/proxy-stream/http://a.com/live/seg1.ts"},
		{"origin with port", "http://a.com:8080/live/x.m3u8", "/seg.ts", "/proxy-stream/http://a.com:8080/seg.ts"},
		{"protocol relative", "https://a.com/live/x.m3u8", "//cdn.example/seg.ts", "/proxy-stream/https://cdn.example/seg.ts"},
		{"origin without path", "http://a.com", "seg.ts", "/proxy-stream/http://a.com/seg.ts"},
		{"surrounding whitespace", "http://a.com/live/x.m3u8", "  seg1.ts  ", "/proxy-stream/http://a.com/live/seg1.ts"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Rewrite(tc.line, tc.origin)
			if got != tc.want {
				t.Errorf("Rewrite(%q, %q) = %q, want %q", tc.line, tc.origin, got, tc.want)
			}
		})
	}
}

func TestRewriteLeavesNonReferenceLines(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-KEY:METHOD=AES-128,URI="key.bin"`,
		"#EXT-X-STREAM-INF:BANDWIDTH=1,URI=low.m3u8",
		"# comment ending in seg.ts",
		"",
		"key.bin",
		"video.mp4",
	}, "\n")

	if got := Rewrite(body, "http://a.com/live/x.m3u8"); got != body {
		t.Errorf("expected body unchanged, got:\n%s", got)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	origin := "http://a.com/live/x.m3u8"
	once := Rewrite(mediaPlaylist, origin)
	twice := Rewrite(once, DefaultPrefix+origin)
	if once != twice {
		t.Errorf("second rewrite changed output:\nfirst:\n%s\nsecond:\n%s", once, twice)
	}
	if again := Rewrite(once, origin); again != once {
		t.Errorf("rewrite with the playlist origin changed output:\n%s", again)
	}
}

func TestRewriteReferencesAreAbsolute(t *testing.T) {
	out := Rewrite(mediaPlaylist, "http://a.com/live/x.m3u8")
	for _, line := range strings.Split(out, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rest, ok := strings.CutPrefix(line, DefaultPrefix)
		if !ok {
			t.Errorf("line %q missing proxy prefix", line)
			continue
		}
		if !hasScheme(rest) {
			t.Errorf("line %q does not carry an absolute URL", line)
		}
	}
}

func TestRewritePreservesCRLF(t *testing.T) {
	body := "#EXTM3U\r\n#EXTINF:4,\r\nseg1.ts\r\n"
	want := "#EXTM3U\r\n#EXTINF:4,\r\n/proxy-stream/http://a.com/seg1.ts\r\n"
	if got := Rewrite(body, "http://a.com/index.m3u8"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteMalformedOrigin(t *testing.T) {
	testCases := []struct {
		name   string
		origin string
		line   string
		want   string
	}{
		{"bad escape keeps base", "http://a.com/%zz/x.m3u8", "seg.ts", "/proxy-stream/http://a.com/%zz/seg.ts"},
		{"bad escape drops origin", "http://a.com/%zz/x.m3u8", "/abs/seg.ts", "/proxy-stream//abs/seg.ts"},
		{"no scheme", "a.com/live/x.m3u8", "seg.ts", "/proxy-stream/a.com/live/seg.ts"},
		{"no slash at all", "x.m3u8", "seg.ts", "/proxy-stream/seg.ts"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Rewrite(tc.line, tc.origin); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRewrittenPlaylistDecodes(t *testing.T) {
	out := Rewrite(mediaPlaylist, "http://a.com/live/x.m3u8")

	p, listType, err := m3u8.DecodeFrom(strings.NewReader(out), true)
	if err != nil {
		t.Fatalf("decode rewritten playlist: %v", err)
	}
	if listType != m3u8.MEDIA {
		t.Fatalf("list type = %v, want media", listType)
	}

	want := []string{
		"/proxy-stream/http://a.com/live/seg1.ts",
		"/proxy-stream/http://a.com/abs/seg2.ts",
		"/proxy-stream/https://cdn.example/seg3.ts",
	}
	var got []string
	for _, seg := range p.(*m3u8.MediaPlaylist).Segments {
		if seg != nil {
			got = append(got, seg.URI)
		}
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("segment URIs = %v, want %v", got, want)
	}
}

func TestReferences(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nlow/index.m3u8\n#EXTINF:4,\n/seg.ts\n/proxy-stream/http://b.com/done.ts\n"
	refs := New("", classify.Default).References(body, "http://a.com/live/master.m3u8")

	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2: %+v", len(refs), refs)
	}
	if refs[0].Kind != classify.Manifest || refs[0].Resolved != "http://a.com/live/low/index.m3u8" || refs[0].Line != 2 {
		t.Errorf("unexpected first reference: %+v", refs[0])
	}
	if refs[1].Kind != classify.Segment || refs[1].Resolved != "http://a.com/seg.ts" || refs[1].Raw != "/seg.ts" {
		t.Errorf("unexpected second reference: %+v", refs[1])
	}
}

func TestRewriterCustomPrefix(t *testing.T) {
	rw := New("/p/", classify.New([]string{".m3u8"}, []string{".ts", ".aac"}))
	got := rw.Rewrite("a.aac\n/p/http://x/y.ts", "http://a.com/live/x.m3u8")
	want := "/p/http://a.com/live/a.aac\n/p/http://x/y.ts"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
