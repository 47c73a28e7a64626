package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"i4.energy/across/modemd/at"
	"i4.energy/across/modemd/atmodem"
	"i4.energy/across/modemd/modem"
)

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Show how modem output splits into frames",
	Long: `Continuously split modem output into frames and print each one with its
kind, without initializing the modem. Nothing is written to the modem.

With --replay, frames are taken from a capture recorded with --capture
instead of a live connection; recorded writes are shown as they were sent.

Lines starting with one of --pdu-prefixes are expected to be followed by a
PDU line, as with the +CMT and +CDS notifications.`,
	RunE: runFrames,
}

const timeFormat = "15:04:05.000"

var defaultPDUPrefixes = []string{"+CMT:", "+CDS:", "+CBM:", "+CMGL:", "+CMGR:"}

func init() {
	framesCmd.Flags().String("replay", "", "Read a CBOR capture instead of the modem")
	framesCmd.Flags().Bool("permissive", false, "Use the permissive syntax regardless of vendor")
	framesCmd.Flags().StringSlice("pdu-prefixes", defaultPDUPrefixes, "Line prefixes followed by a PDU")
	rootCmd.AddCommand(framesCmd)
}

// maxFrameSize bounds a partial frame. Longer runs without a boundary are
// reported as unrecognized.
const maxFrameSize = 16 << 10

// framer feeds bytes through a syntax and reports complete frames.
type framer struct {
	syntax      at.Syntax
	pduPrefixes []string
	frame       []byte
	emit        func(kind at.FrameKind, frame []byte)
}

func newFramer(kind at.SyntaxKind, pduPrefixes []string, emit func(at.FrameKind, []byte)) *framer {
	return &framer{
		syntax:      at.NewSyntax(kind),
		pduPrefixes: pduPrefixes,
		emit:        emit,
	}
}

func (f *framer) Feed(data []byte) {
	for len(data) > 0 {
		kind, n := f.syntax.Feed(data)
		f.frame = append(f.frame, data[:n]...)
		data = data[n:]
		if kind == at.FrameUnsure {
			if len(f.frame) > maxFrameSize {
				f.emit(at.FrameUnrecognized, f.frame)
				f.frame = nil
				f.syntax.Reset()
			}
			return
		}

		frame := f.frame
		f.frame = nil

		if kind == at.FrameLine || kind == at.FrameMultiline {
			line := at.ExtractLine(frame)
			for _, p := range f.pduPrefixes {
				if strings.HasPrefix(line, p) {
					f.syntax.SetHint(at.HintPDU)
					break
				}
			}
		}
		f.emit(kind, frame)
	}
}

// printFrame prints frames stamped with the time clock returns.
func printFrame(w io.Writer, clock func() time.Time) func(at.FrameKind, []byte) {
	return func(kind at.FrameKind, frame []byte) {
		fmt.Fprintf(w, "%s %-12s %s\n", clock().Format(timeFormat), kind, strconv.Quote(string(frame)))
	}
}

func runFrames(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var kind at.SyntaxKind
	if permissive, _ := cmd.Flags().GetBool("permissive"); permissive {
		kind = at.SyntaxPermissive
	} else {
		vendor, err := atmodem.ParseVendor(config.Modem.Vendor)
		if err != nil {
			return err
		}
		kind = vendor.Profile().Syntax
	}

	prefixes, _ := cmd.Flags().GetStringSlice("pdu-prefixes")

	if path, _ := cmd.Flags().GetString("replay"); path != "" {
		return replayFrames(path, kind, prefixes, os.Stdout)
	}

	d, err := dialer(config.Modem)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := d.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("modemd - Frame Log\n")
	fmt.Printf("Connection: %s\n", connectionInfo(config.Modem))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	f := newFramer(kind, prefixes, printFrame(os.Stdout, time.Now))
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		f.Feed(buf[:n])
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

func replayFrames(path string, kind at.SyntaxKind, prefixes []string, w io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	records, err := modem.ReadCapture(file)
	if err != nil {
		return err
	}

	var stamp time.Time
	f := newFramer(kind, prefixes, printFrame(w, func() time.Time { return stamp }))

	for _, rec := range records {
		stamp = rec.Time
		if rec.Dir == modem.DirWrite {
			fmt.Fprintf(w, "%s %-12s %s\n", stamp.Format(timeFormat), ">>>", strconv.Quote(string(rec.Data)))
			continue
		}
		f.Feed(rec.Data)
	}
	return nil
}
