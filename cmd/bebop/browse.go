package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nao1215/bebop/internal/model"
	"github.com/nao1215/bebop/internal/navigation"
	"github.com/nao1215/bebop/internal/report"
	"github.com/nao1215/bebop/internal/tofu"
	"github.com/nao1215/bebop/internal/uri"
)

// maxRecoveries bounds how many prompts one command may raise, e.g. an
// input request followed by a redirect.
const maxRecoveries = 5

// browseHelp lists the commands of the browser prompt.
const browseHelp = `Commands:
  NUMBER   follow the link with that number
  g URL    go to URL
  ENTER/n  next screen        p  previous screen
  b        back               f  forward
  r        reload             u  parent directory
  /        root of the host   h  history
  i        page information   ?  this help
  q        quit`

// NewBrowseCmd creates the browse command.
func NewBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse [URL]",
		Short: "Browse interactively",
		Long: `Browse opens URL, or the home page from the configuration, and reads
commands from standard input. Type a link number to follow a link and
"?" for the list of commands.

When a server certificate differs from the pinned one, browse asks
whether to trust the new certificate for this session, pin it for good
or stop.

Examples:
  bebop browse
  bebop browse gemini://geminiprotocol.net/
  bebop browse --ephemeral gopher://gopher.floodgap.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runBrowseCmd,
	}

	cmd.Flags().BoolP("urls", "u", false, "Show the URL of every link")
	cmd.Flags().Bool("no-color", false, "Disable colored output")

	return cmd
}

// runBrowseCmd executes the browse command.
func runBrowseCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	showURLs, err := cmd.Flags().GetBool("urls")
	if err != nil {
		return err
	}
	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("failed to close trust store", "error", err)
		}
	}()

	start := cfg.Home
	if len(args) == 1 {
		start = args[0]
	}

	b := newBrowser(s, cmd.InOrStdin(), cmd.OutOrStdout(), showURLs, !noColor)
	return b.run(ctx, start)
}

// browser is the line-oriented interactive front end of an Engine.
type browser struct {
	engine *navigation.Engine
	store  *tofu.Store
	in     *bufio.Reader
	out    io.Writer
	text   *report.TextWriter

	// terminal is stdin when it is a terminal, for reading hidden input.
	terminal *os.File
	height   int
}

// newBrowser creates a browser reading commands from in. The screen size
// is taken from out when it is a terminal.
func newBrowser(s *session, in io.Reader, out io.Writer, showURLs, color bool) *browser {
	width, height := s.cfg.TextWidth, 24
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // File descriptors fit in an int
		if w, h, err := term.GetSize(int(f.Fd())); err == nil { //nolint:gosec // File descriptors fit in an int
			if width == 0 || w < width {
				width = w
			}
			height = h
		}
	} else {
		color = false
	}

	b := &browser{
		engine: s.engine,
		store:  s.store,
		in:     bufio.NewReader(in),
		out:    out,
		text: report.NewTextWriter(out,
			report.WithWidth(width),
			report.WithLinkURLs(showURLs),
			report.WithColor(color),
		),
		height: height,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // File descriptors fit in an int
		b.terminal = f
	}
	return b
}

// run opens start and executes commands until "q" or the end of input.
func (b *browser) run(ctx context.Context, start string) error {
	b.open(ctx, func(ctx context.Context) (*model.Page, error) {
		return b.engine.Navigate(ctx, start, navigation.AsInput())
	})

	for {
		fmt.Fprint(b.out, "> ")
		line, err := b.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(b.out)
				return nil
			}
			return err
		}
		if b.dispatch(ctx, strings.TrimSpace(line)) {
			return nil
		}
	}
}

// readLine reads one line of input without the line break.
func (b *browser) readLine() (string, error) {
	line, err := b.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// dispatch executes one command and reports whether the browser should
// quit.
func (b *browser) dispatch(ctx context.Context, line string) bool {
	switch {
	case line == "q" || line == "quit":
		return true
	case line == "?" || line == "help":
		fmt.Fprintln(b.out, browseHelp)
	case line == "" || line == "n":
		b.scroll(1)
	case line == "p":
		b.scroll(-1)
	case line == "b":
		b.open(ctx, b.engine.Back)
	case line == "f":
		b.open(ctx, b.engine.Forward)
	case line == "r":
		b.open(ctx, b.engine.Reload)
	case line == "u":
		b.open(ctx, b.engine.Parent)
	case line == "/":
		b.open(ctx, b.engine.Root)
	case line == "h":
		b.open(ctx, func(ctx context.Context) (*model.Page, error) {
			return b.engine.Navigate(ctx, navigation.AboutHistory)
		})
	case line == "i":
		b.info()
	case strings.HasPrefix(line, "g "):
		target := strings.TrimSpace(strings.TrimPrefix(line, "g "))
		b.open(ctx, func(ctx context.Context) (*model.Page, error) {
			return b.engine.Navigate(ctx, target, navigation.AsInput())
		})
	case isDigits(line):
		id, err := selectLink(b.engine.Selector(), line)
		if err != nil {
			b.printError(err)
			return false
		}
		b.open(ctx, func(ctx context.Context) (*model.Page, error) {
			return b.engine.FollowLink(ctx, id)
		})
	default:
		fmt.Fprintf(b.out, "unknown command %q, type ? for help\n", line)
	}
	return false
}

// open runs action and shows the resulting page. Errors that the user can
// resolve, such as input requests and changed certificates, are turned
// into prompts and the follow-up action is run.
func (b *browser) open(ctx context.Context, action func(context.Context) (*model.Page, error)) {
	page, err := action(ctx)
	for range maxRecoveries {
		if err == nil {
			break
		}
		next := b.resolve(ctx, err, action)
		if next == nil {
			break
		}
		action = next
		page, err = action(ctx)
	}
	if err != nil {
		b.printError(err)
		return
	}
	b.show(page)
}

// resolve asks the user how to continue after err. It returns the action
// to run next, or nil to give up.
func (b *browser) resolve(ctx context.Context, err error, action func(context.Context) (*model.Page, error)) func(context.Context) (*model.Page, error) {
	var (
		inputErr    *navigation.InputRequiredError
		mismatch    *tofu.PinMismatchError
		redirectErr *navigation.RedirectError
	)
	switch {
	case errors.As(err, &inputErr):
		prompt := inputErr.Prompt
		if prompt == "" {
			prompt = "Input"
		}
		text, ok := b.ask(prompt+": ", inputErr.Sensitive)
		if !ok {
			return nil
		}
		return func(ctx context.Context) (*model.Page, error) {
			return b.engine.SubmitInput(ctx, inputErr, text)
		}

	case errors.As(err, &mismatch):
		fmt.Fprintf(b.out, "The certificate of %s:%d has changed.\n  pinned: %s\n  now:    %s\n",
			mismatch.Host, mismatch.Port, mismatch.Expected, mismatch.Got)
		answer, ok := b.ask("[t]rust for this session, [r]epin, [a]bort? ", false)
		if !ok {
			return nil
		}
		switch strings.ToLower(answer) {
		case "t":
			b.store.TrustForSession(mismatch.Host, mismatch.Port, mismatch.Got, 0)
		case "r":
			if err := b.store.Repin(ctx, mismatch.Host, mismatch.Port, mismatch.Got); err != nil {
				b.printError(err)
				return nil
			}
		default:
			return nil
		}
		return action

	case errors.As(err, &redirectErr):
		answer, ok := b.ask(fmt.Sprintf("Follow redirect to %s? [y/N] ", redirectErr.To), false)
		if !ok || !strings.EqualFold(answer, "y") {
			return nil
		}
		target := redirectErr.To.String()
		return func(ctx context.Context) (*model.Page, error) {
			return b.engine.Navigate(ctx, target)
		}
	}
	return nil
}

// ask prints prompt and reads an answer. Sensitive answers are read
// without echo when stdin is a terminal. It reports false at the end of
// input.
func (b *browser) ask(prompt string, sensitive bool) (string, bool) {
	fmt.Fprint(b.out, prompt)
	if sensitive && b.terminal != nil {
		secret, err := term.ReadPassword(int(b.terminal.Fd())) //nolint:gosec // File descriptors fit in an int
		fmt.Fprintln(b.out)
		return string(secret), err == nil
	}
	line, err := b.readLine()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// screenLines is the number of page lines shown at once.
func (b *browser) screenLines() int {
	return max(b.height-2, 1)
}

// show prints one screen of page starting at the saved cursor.
func (b *browser) show(page *model.Page) {
	start := b.engine.Cursor().Line
	if start >= len(page.Lines) {
		start = max(len(page.Lines)-1, 0)
	}
	end := min(start+b.screenLines(), len(page.Lines))

	window := *page
	window.Lines = page.Lines[start:end]
	if err := b.text.Render(&window, navigation.Cursor{}); err != nil {
		b.printError(err)
		return
	}
	fmt.Fprintf(b.out, "-- %s -- lines %d-%d of %d, %d links\n",
		page.Title, start+1, end, len(page.Lines), page.LinkCount())
}

// scroll moves the cursor one screen forward or back.
func (b *browser) scroll(direction int) {
	page := b.engine.Current()
	if page == nil {
		b.printError(navigation.ErrNoHistory)
		return
	}
	cur := b.engine.Cursor().Line
	next := cur + direction*b.screenLines()
	next = max(min(next, len(page.Lines)-1), 0)
	if next == cur {
		fmt.Fprintln(b.out, "-- no more lines --")
		return
	}
	b.engine.SetCursor(next)
	b.show(page)
}

// info prints the address of the current page and the trust state of
// its host.
func (b *browser) info() {
	page := b.engine.Current()
	if page == nil {
		b.printError(navigation.ErrNoHistory)
		return
	}
	fmt.Fprintf(b.out, "URL:   %s\nType:  %s\nSize:  %d bytes\n", page.Address(), page.MIME, page.Size)
	if page.URL == nil || page.URL.Scheme != uri.SchemeGemini {
		return
	}
	port := page.URL.EffectivePort()
	fmt.Fprintf(b.out, "Trust: %s\n", b.store.State(page.URL.Host, port))
	if pin, ok := b.store.Pin(page.URL.Host, port); ok {
		fmt.Fprintf(b.out, "Pin:   %s (since %s)\n", pin.Fingerprint, pin.FirstSeen.Format("2006-01-02"))
	}
}

// printError prints err and a hint when there is one.
func (b *browser) printError(err error) {
	fmt.Fprintf(b.out, "error: %v\n", err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(b.out, hint)
	}
}

// selectLink types digits into sel and returns the selected link. Digits
// left over after the selector committed make the selection invalid.
func selectLink(sel *navigation.LinkSelector, digits string) (int, error) {
	for i, r := range digits {
		id, done, err := sel.Type(r)
		if err != nil {
			return 0, err
		}
		if done {
			if i != len(digits)-1 {
				sel.Reset()
				return 0, fmt.Errorf("%w: %s", navigation.ErrInvalidLinkID, digits)
			}
			return id, nil
		}
	}
	return sel.Enter()
}

// isDigits reports whether s is a non-empty string of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
