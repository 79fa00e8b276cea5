// Command termsort sorts a text file of terms, one "k1 k2 ... : p/q" per
// line, combining equal keys.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/termsort"
	"github.com/hupe1980/termsort/blobstore"
	"github.com/hupe1980/termsort/internal/engine"
	"github.com/hupe1980/termsort/prom"
	"github.com/hupe1980/termsort/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "termsort:", err)
		os.Exit(1)
	}
}

type flags struct {
	in, out     string
	kind        string
	order       string
	compression string
	tmp         string
	workers     int
	checkpoint  string
	resume      bool
	metrics     string
	verbose     bool
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("termsort", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "-", "input file, - for stdin")
	fs.StringVar(&f.out, "out", "-", "output file, - for stdout")
	fs.StringVar(&f.kind, "kind", "main", "buffer profile: main, function or sub")
	fs.StringVar(&f.order, "order", "asc", "key order: asc or desc")
	fs.StringVar(&f.compression, "compression", "none", "patch codec: none, lz4, zstd or s2")
	fs.StringVar(&f.tmp, "tmp", os.TempDir(), "directory for scratch files")
	fs.IntVar(&f.workers, "workers", 1, "number of sort workers")
	fs.StringVar(&f.checkpoint, "checkpoint", "", "directory for a checkpoint taken after the input is read")
	fs.BoolVar(&f.resume, "resume", false, "continue from the checkpoint in -checkpoint")
	fs.StringVar(&f.metrics, "metrics", "", "serve Prometheus metrics on this address")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.resume && f.checkpoint == "" {
		return f, errors.New("-resume needs -checkpoint")
	}
	if f.workers > 1 && f.checkpoint != "" {
		return f, errors.New("-checkpoint is not supported with several workers")
	}

	return f, nil
}

func (f flags) options(stderr io.Writer, mc termsort.MetricsCollector) ([]termsort.Option, error) {
	kind, err := engine.ParseKind(f.kind)
	if err != nil {
		return nil, err
	}
	var cmp term.Comparator
	switch f.order {
	case "asc":
		cmp = term.Ascending{}
	case "desc":
		cmp = term.Descending{}
	default:
		return nil, fmt.Errorf("unknown order %q", f.order)
	}
	var c termsort.Compression
	switch strings.ToLower(f.compression) {
	case "none":
		c = termsort.CompressionNone
	case "lz4":
		c = termsort.CompressionLZ4
	case "zstd":
		c = termsort.CompressionZSTD
	case "s2":
		c = termsort.CompressionS2
	default:
		return nil, fmt.Errorf("unknown compression %q", f.compression)
	}
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}

	opts := []termsort.Option{
		termsort.WithKind(kind),
		termsort.WithComparator(cmp),
		termsort.WithCompression(c, 0),
		termsort.WithTempDir(f.tmp),
		termsort.WithWorkers(f.workers),
		termsort.WithLogger(termsort.NewLogger(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))),
		termsort.WithMetricsCollector(mc),
	}
	if f.checkpoint != "" {
		opts = append(opts, termsort.WithCheckpointStore(blobstore.NewLocalStore(f.checkpoint)))
	}

	return opts, nil
}

// source is the common surface of Sorter and ParallelSorter.
type source interface {
	Push(ctx context.Context, t term.Term) error
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	var mc termsort.MetricsCollector
	if f.metrics != "" {
		c := prom.New("termsort")
		reg := prometheus.NewRegistry()
		reg.MustRegister(c)
		srv := &http.Server{Addr: f.metrics, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() { _ = srv.ListenAndServe() }()
		defer srv.Close()
		mc = c
	}
	opts, err := f.options(stderr, mc)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(f.in, stdin)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(f.out, stdout)
	if err != nil {
		return err
	}

	err = sortInto(ctx, f, opts, in, out)

	return errors.Join(err, closeOut())
}

func sortInto(ctx context.Context, f flags, opts []termsort.Option, in io.Reader, out *bufio.Writer) error {
	if f.workers > 1 {
		ps, err := termsort.NewParallel(ctx, opts...)
		if err != nil {
			return err
		}
		if err := readTerms(ctx, in, ps); err != nil {
			return errors.Join(err, ps.Abort())
		}
		s, err := ps.Finish(ctx)
		if err != nil {
			return err
		}
		return writeTerms(s.All(), out)
	}

	var (
		s   *termsort.Sorter
		err error
	)
	if f.resume {
		s, err = termsort.Resume(ctx, opts...)
	} else {
		s, err = termsort.New(ctx, opts...)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	if err := readTerms(ctx, in, s); err != nil {
		return err
	}
	if f.checkpoint != "" {
		if _, err := s.Checkpoint(ctx); err != nil {
			return err
		}
	}
	stream, err := s.Finish(ctx)
	if err != nil {
		return err
	}

	return writeTerms(stream.All(), out)
}

func readTerms(ctx context.Context, r io.Reader, dst source) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		t, err := term.Parse(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := dst.Push(ctx, t); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}

	return sc.Err()
}

func writeTerms(all iter.Seq2[term.Term, error], w *bufio.Writer) error {
	for t, err := range all {
		if err != nil {
			return err
		}
		if _, err := w.WriteString(t.String()); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}

	return nil
}

func openInput(name string, stdin io.Reader) (io.Reader, func(), error) {
	if name == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}

	return f, func() { _ = f.Close() }, nil
}

func openOutput(name string, stdout io.Writer) (*bufio.Writer, func() error, error) {
	if name == "-" {
		w := bufio.NewWriter(stdout)
		return w, w.Flush, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, err
	}
	w := bufio.NewWriter(f)

	return w, func() error { return errors.Join(w.Flush(), f.Close()) }, nil
}
