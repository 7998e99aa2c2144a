package ffmpeg

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCommandArgsOrder(t *testing.T) {
	cmd := New().
		Input("scene.png", "-loop", "1", "-framerate", "24").
		Input("anullsrc=channel_layout=stereo:sample_rate=44100", "-f", "lavfi").
		VideoFilter("scale=480:854", "", "fps=24").
		Out("-c:v", "libx264", "-t", "3.000").
		Output("out.mp4")

	want := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loop", "1", "-framerate", "24", "-i", "scene.png",
		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-vf", "scale=480:854,fps=24",
		"-c:v", "libx264", "-t", "3.000",
		"out.mp4",
	}
	if diff := cmp.Diff(want, cmd.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}
	if cmd.OutputPath() != "out.mp4" {
		t.Errorf("expected output path out.mp4, got %s", cmd.OutputPath())
	}
}

func TestCommandKeepsHostileNamesAsSingleArgs(t *testing.T) {
	name := "clip; rm -rf $HOME 'x'.mp4"
	args := New().Input(name).Output("o.mp4").Args()

	found := false
	for _, a := range args {
		if a == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q to be passed as one argument, got %v", name, args)
	}
	if !strings.Contains(New().Input(name).String(), `'\''`) {
		t.Error("expected String() to quote single quotes for logs")
	}
}

func TestFilterComplex(t *testing.T) {
	args := New().Input("a.mp4").FilterComplex("[0:v]null[v]").Out("-map", "[v]").Output("b.mp4").Args()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-filter_complex [0:v]null[v] -map [v] b.mp4") {
		t.Errorf("unexpected args: %s", joined)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := EscapeFilterPath(`C:\subs\it's.ass`)
	want := `C\:\\subs\\it'\''s.ass`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
