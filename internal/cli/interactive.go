package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// errInputClosed is returned when stdin ends before the wizard completes.
var errInputClosed = errors.New("input closed before the wizard finished")

func newInteractiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Configure and start a research run step by step",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := &wizard{
				out:    cmd.OutOrStdout(),
				in:     app.In,
				reader: bufio.NewReader(app.In),
			}
			s, ok, err := w.collect(app.Config.Research, app.Config.Keyso)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(w.out, "Cancelled")
				return nil
			}
			return app.research(cmd.Context(), w.out, s)
		},
	}
}

type wizard struct {
	out    io.Writer
	in     io.Reader
	reader *bufio.Reader
}

// collect walks through the prompts. ok is false when the user declines
// the final confirmation.
func (w *wizard) collect(rc config.ResearchConfig, kc config.KeysoConfig) (session, bool, error) {
	fmt.Fprintln(w.out, rule)
	fmt.Fprintln(w.out, "KEYWORD HUNTER - interactive mode")
	fmt.Fprintln(w.out, rule)

	base, region, err := w.selectRegion()
	if err != nil {
		return session{}, false, err
	}
	rc.Base, rc.RegionID = base, region

	if rc.Niche, err = w.niche(); err != nil {
		return session{}, false, err
	}

	fmt.Fprintln(w.out, "\nStop words (comma separated, Enter keeps the defaults):")
	line, err := w.prompt("Stop words: ")
	if err != nil {
		return session{}, false, err
	}
	if words := splitList(line); len(words) > 0 {
		rc.StopWords = words
	}

	fmt.Fprintln(w.out, "\nSettings:")
	if rc.WSKThreshold, err = w.promptInt("  WSK threshold", rc.WSKThreshold); err != nil {
		return session{}, false, err
	}
	if rc.MinNumWords, err = w.promptInt("  Minimum words per phrase", rc.MinNumWords); err != nil {
		return session{}, false, err
	}
	if rc.MaxResults, err = w.promptInt("  Maximum results", rc.MaxResults); err != nil {
		return session{}, false, err
	}
	if rc.ReturnTop, err = w.promptInt("  Show in report", rc.ReturnTop); err != nil {
		return session{}, false, err
	}
	if rc.Offline, err = w.promptYesNo("  Offline mode, seeds only without the API?", rc.Offline); err != nil {
		return session{}, false, err
	}

	if !rc.Offline && strings.TrimSpace(kc.Token) == "" {
		fmt.Fprint(w.out, "API token: ")
		token, err := w.secret()
		if err != nil {
			return session{}, false, err
		}
		kc.Token = token
	}

	w.summary(rc, kc.Token)
	ok, err := w.promptYesNo("\nStart?", false)
	if err != nil {
		return session{}, false, err
	}
	return session{research: rc, keyso: kc}, ok, nil
}

func (w *wizard) selectRegion() (string, int, error) {
	fmt.Fprintln(w.out, "\nSelect a region:")
	for _, r := range domain.Regions() {
		fmt.Fprintf(w.out, "  %s. %s\n", r.Key, r.Name)
	}
	fmt.Fprintln(w.out, "  all. All regions")

	for {
		choice, err := w.prompt("\nRegion number: ")
		if err != nil {
			return "", 0, err
		}
		if strings.EqualFold(choice, "all") {
			return domain.MultiBase, 0, nil
		}
		if r, ok := domain.RegionByKey(choice); ok {
			return r.Base, r.ID, nil
		}
		fmt.Fprintln(w.out, "Invalid choice, try again")
	}
}

func (w *wizard) niche() (string, error) {
	fmt.Fprintln(w.out, "\nDescribe your niche:")
	fmt.Fprintln(w.out, "  (for example: premium flower delivery in Moscow)")
	for {
		niche, err := w.prompt("\nNiche: ")
		if err != nil {
			return "", err
		}
		if niche != "" {
			return niche, nil
		}
		fmt.Fprintln(w.out, "The niche description cannot be empty")
	}
}

func (w *wizard) summary(rc config.ResearchConfig, token string) {
	masked := "not set"
	if token != "" {
		masked = "***"
	}
	fmt.Fprintln(w.out, "\n"+rule)
	fmt.Fprintln(w.out, "SETTINGS")
	fmt.Fprintln(w.out, rule)
	fmt.Fprintf(w.out, "  niche: %s\n", rc.Niche)
	fmt.Fprintf(w.out, "  base: %s\n", rc.Base)
	fmt.Fprintf(w.out, "  region_id: %d\n", rc.RegionID)
	fmt.Fprintf(w.out, "  stop_words: %s\n", strings.Join(rc.StopWords, ", "))
	fmt.Fprintf(w.out, "  wsk_threshold: %d\n", rc.WSKThreshold)
	fmt.Fprintf(w.out, "  min_num_words: %d\n", rc.MinNumWords)
	fmt.Fprintf(w.out, "  max_results: %d\n", rc.MaxResults)
	fmt.Fprintf(w.out, "  return_top: %d\n", rc.ReturnTop)
	fmt.Fprintf(w.out, "  offline: %t\n", rc.Offline)
	fmt.Fprintf(w.out, "  api_token: %s\n", masked)
	fmt.Fprintln(w.out, rule)
}

// prompt prints label and reads one trimmed line. A final line without a
// newline is accepted; end of input with nothing read is errInputClosed.
func (w *wizard) prompt(label string) (string, error) {
	fmt.Fprint(w.out, label)
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", errInputClosed
		}
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptInt keeps def for empty or non-numeric answers.
func (w *wizard) promptInt(label string, def int) (int, error) {
	line, err := w.prompt(fmt.Sprintf("%s (default %d): ", label, def))
	if err != nil {
		return 0, err
	}
	v, convErr := strconv.Atoi(line)
	if convErr != nil || v < 0 {
		return def, nil
	}
	return v, nil
}

func (w *wizard) promptYesNo(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	line, err := w.prompt(fmt.Sprintf("%s (%s): ", label, hint))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return def, nil
	}
}

// secret reads a line without echo when input is a terminal.
func (w *wizard) secret() (string, error) {
	if f, ok := w.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w.out)
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := w.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errInputClosed
		}
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
