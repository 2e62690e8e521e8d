package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/fft"
)

var (
	transformKind    string
	transformInput   string
	transformInverse bool
	transformNorm    string
	transformStats   bool
	transformNoCache bool
)

func init() {
	cmd := newTransformCmd()
	cmd.Flags().StringVarP(&transformKind, "kind", "k", "c", "Transform family: c, r, nd, ndr")
	cmd.Flags().StringVar(&transformInput, "input", "", "Comma separated input values, or - for stdin (default: impulse)")
	cmd.Flags().BoolVar(&transformInverse, "inverse", false, "Run the inverse transform")
	cmd.Flags().StringVar(&transformNorm, "norm", "backward", "Normalization: backward, ortho, none")
	cmd.Flags().BoolVar(&transformStats, "stats", false, "Print engine and plan cache stats after the run")
	cmd.Flags().BoolVar(&transformNoCache, "no-cache", false, "Do not share the plan through the cache")
	rootCmd.AddCommand(cmd)
}

func newTransformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transform <shape>",
		Short: "Run one forward or inverse transform",
		Long: `The transform command opens a session for the given shape, runs one
direction and prints the result, one value or complex pair per line.

Example:
  kissfft transform 8
  kissfft transform 16 --kind r --input 1,1,1,1,1,1,1,1,1,1,1,1,1,1,1,1
  kissfft transform 4x4 --kind ndr --stats
  echo "4 0 0 0 0 0" | kissfft transform 4 --kind r --inverse --input -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup(cmd.Context(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer c.Close(cmd.Context())

			req := request{
				Kind:    transformKind,
				Shape:   args[0],
				Inverse: transformInverse,
				Norm:    transformNorm,
				NoCache: transformNoCache,
			}
			return oneShot(cmd.OutOrStdout(), cmd.InOrStdin(), c, req, transformInput, transformStats)
		},
	}
}

// request describes a single transform run from the CLI, the TUI or HTTP.
type request struct {
	Kind    string    `json:"kind"`
	Shape   string    `json:"shape"`
	Input   []float32 `json:"input,omitempty"`
	Inverse bool      `json:"inverse,omitempty"`
	Norm    string    `json:"norm,omitempty"`
	NoCache bool      `json:"no_cache,omitempty"`
}

type response struct {
	Session  string    `json:"session"`
	Kind     string    `json:"kind"`
	Shape    []int     `json:"shape"`
	Inverse  bool      `json:"inverse"`
	Output   []float32 `json:"output"`
	PlanKeys []string  `json:"plan_keys"`
}

func parseKind(s string) (kissfft.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "c", "complex":
		return kissfft.KindComplex, nil
	case "r", "real":
		return kissfft.KindReal, nil
	case "nd":
		return kissfft.KindNDComplex, nil
	case "ndr", "nd-real":
		return kissfft.KindNDReal, nil
	default:
		return 0, errors.InvalidArgument("parseKind", "unknown kind %q (want c, r, nd or ndr)", s)
	}
}

// parseFloats reads comma or whitespace separated numbers.
func parseFloats(s string) ([]float32, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	out := make([]float32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, errors.InvalidArgument("parseFloats", "bad number %q", f)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func openSession(c *fft.Context, kind kissfft.Kind, shape []int, opts ...fft.SessionOption) (*fft.Session, error) {
	switch kind {
	case kissfft.KindComplex:
		if len(shape) != 1 {
			return nil, errors.InvalidArgument("openSession", "complex transform takes one dimension, got %d", len(shape))
		}
		return c.NewComplex(shape[0], opts...)
	case kissfft.KindReal:
		if len(shape) != 1 {
			return nil, errors.InvalidArgument("openSession", "real transform takes one dimension, got %d", len(shape))
		}
		return c.NewReal(shape[0], opts...)
	case kissfft.KindNDComplex:
		return c.NewND(shape, opts...)
	default:
		return c.NewNDReal(shape, opts...)
	}
}

// runTransform opens a session, runs one direction and disposes it. An
// empty input is replaced by a unit impulse.
func runTransform(c *fft.Context, req request) (*response, error) {
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	shape, err := fft.ParseShape(req.Shape)
	if err != nil {
		return nil, err
	}
	norm, err := fft.ParseNorm(req.Norm)
	if err != nil {
		return nil, err
	}

	s, err := openSession(c, kind, shape, fft.WithNorm(norm), fft.WithCache(!req.NoCache))
	if err != nil {
		return nil, err
	}
	defer s.Dispose()

	inLen := s.InputLen()
	if req.Inverse {
		inLen = s.SpectrumLen()
	}
	in := req.Input
	if len(in) == 0 {
		in = make([]float32, inLen)
		in[0] = 1
	}

	var out []float32
	if req.Inverse {
		out, err = s.Inverse(in, nil)
	} else {
		out, err = s.Forward(in, nil)
	}
	if err != nil {
		return nil, err
	}
	return &response{
		Session:  s.ID(),
		Kind:     kind.String(),
		Shape:    s.Shape(),
		Inverse:  req.Inverse,
		Output:   out,
		PlanKeys: c.CacheStats().Keys,
	}, nil
}

// formatOutput prints one value per line, or one complex pair per line.
func formatOutput(out []float32, complexPairs bool) string {
	var b strings.Builder
	if !complexPairs {
		for i, v := range out {
			fmt.Fprintf(&b, "%4d  %+.6g\n", i, v)
		}
		return b.String()
	}
	for i := 0; i+1 < len(out); i += 2 {
		fmt.Fprintf(&b, "%4d  %+.6g %+.6gi\n", i/2, out[i], out[i+1])
	}
	return b.String()
}

// complexOutput reports whether the output of a run is interleaved complex.
func complexOutput(kind kissfft.Kind, inverse bool) bool {
	return !kind.IsReal() || !inverse
}

func oneShot(w io.Writer, stdin io.Reader, c *fft.Context, req request, input string, withStats bool) error {
	if input == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		input = string(data)
	}
	if strings.TrimSpace(input) != "" {
		vals, err := parseFloats(input)
		if err != nil {
			return err
		}
		req.Input = vals
	}

	resp, err := runTransform(c, req)
	if err != nil {
		return err
	}
	kind, _ := parseKind(req.Kind)
	fmt.Fprint(w, formatOutput(resp.Output, complexOutput(kind, req.Inverse)))

	if withStats {
		printStats(w, c)
	}
	return nil
}

func printStats(w io.Writer, c *fft.Context) {
	st := c.Engine().Stats()
	cs := c.CacheStats()
	fmt.Fprintf(w, "\nengine: %s  live blocks: %d  heap top: %d  memory: %d bytes\n",
		st.Variant, st.LiveBlocks, st.HeapTop, st.MemoryBytes)
	fmt.Fprintf(w, "plan cache: %d entries  hits: %d  misses: %d  keys: %v\n",
		cs.Size, cs.Hits, cs.Misses, cs.Keys)
}
