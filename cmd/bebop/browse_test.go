package main

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/nao1215/bebop/internal/navigation"
)

func TestSelectLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		count  int
		policy navigation.CommitPolicy
		digits string
		want   int
	}{
		{"single digit commits at once", 23, navigation.CommitUnambiguous, "5", 5},
		{"two digits", 23, navigation.CommitUnambiguous, "21", 21},
		{"prefix waits for enter", 23, navigation.CommitUnambiguous, "2", 2},
		{"max digits", 23, navigation.CommitOnMaxDigits, "7", 7},
		{"enter policy", 23, navigation.CommitOnEnter, "17", 17},
		{"fewer than ten links", 9, navigation.CommitOnEnter, "9", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := selectLink(navigation.NewLinkSelector(tt.count, tt.policy), tt.digits)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("selected %d, want %d", got, tt.want)
			}
		})
	}

	for _, digits := range []string{"24", "0", "52", "100"} {
		t.Run("invalid "+digits, func(t *testing.T) {
			t.Parallel()

			_, err := selectLink(navigation.NewLinkSelector(23, navigation.CommitUnambiguous), digits)
			if !errors.Is(err, navigation.ErrInvalidLinkID) {
				t.Errorf("expected ErrInvalidLinkID, got %v", err)
			}
		})
	}
}

func TestIsDigits(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"":    false,
		"1":   true,
		"123": true,
		"1a":  false,
		"-1":  false,
		"１":   false,
	}
	for in, want := range tests {
		if got := isDigits(in); got != want {
			t.Errorf("isDigits(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestRunBrowseCmd drives the browser with scripted input.
func TestRunBrowseCmd(t *testing.T) {
	env := newTestEnv(t)
	index := env.writeFile(t, "index.gmi", "# Home\nHello\n=> other.gmi Other page\n")
	env.writeFile(t, "other.gmi", "# Other\nSecond page\n")

	t.Run("follow a link and go back", func(t *testing.T) {
		stdout, _, err := env.run(t, strings.NewReader("1\nb\nq\n"), "--ephemeral", "browse", index)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home := strings.Index(stdout, "-- Home --")
		other := strings.Index(stdout, "Second page")
		back := strings.LastIndex(stdout, "-- Home --")
		if home < 0 || other < home || back < other {
			t.Errorf("unexpected session:\n%s", stdout)
		}
		if strings.Contains(stdout, "error:") {
			t.Errorf("unexpected error in session:\n%s", stdout)
		}
	})

	t.Run("invalid link and unknown command", func(t *testing.T) {
		stdout, _, err := env.run(t, strings.NewReader("7\nzz\n"), "--ephemeral", "browse", index)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "error: invalid link number") {
			t.Errorf("expected an invalid link error, got:\n%s", stdout)
		}
		if !strings.Contains(stdout, `unknown command "zz"`) {
			t.Errorf("expected an unknown command message, got:\n%s", stdout)
		}
	})

	t.Run("page information and history", func(t *testing.T) {
		stdout, _, err := env.run(t, strings.NewReader("i\nh\n?\nq\n"), "--ephemeral", "browse", index)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"URL:   " + index, "Type:  text/gemini", index, "Commands:"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected %q in session:\n%s", want, stdout)
			}
		}
	})

	t.Run("home page from the configuration", func(t *testing.T) {
		stdout, _, err := env.run(t, strings.NewReader("q\n"), "--ephemeral", "browse")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "bebop") {
			t.Errorf("expected the version page, got:\n%s", stdout)
		}
	})

	t.Run("back without history", func(t *testing.T) {
		stdout, _, err := env.run(t, strings.NewReader("b\n"), "--ephemeral", "browse", index)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "error: "+navigation.ErrNoHistory.Error()) {
			t.Errorf("expected a no history error, got:\n%s", stdout)
		}
	})

	t.Run("search prompt is answered", func(t *testing.T) {
		port, selectors := startGopherServer(t, "iFound it\t\th\t1\r\n.\r\n")

		stdout, _, err := env.run(t, strings.NewReader("bebop client\nq\n"),
			"--ephemeral", "browse", "gopher://127.0.0.1:"+port+"/7/search")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := <-selectors; got != "/search\tbebop client" {
			t.Errorf("unexpected selector %q", got)
		}
		if !strings.Contains(stdout, "Search: ") || !strings.Contains(stdout, "Found it") {
			t.Errorf("unexpected session:\n%s", stdout)
		}
	})
}

// startGopherServer answers every connection with reply and sends the
// received selectors to the returned channel.
func startGopherServer(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	ch := make(chan string, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				ch <- strings.TrimSuffix(line, "\r\n")
				_, _ = conn.Write([]byte(reply))
			}(conn)
		}
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return port, ch
}
