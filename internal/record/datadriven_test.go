package record

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// TestDecodeTable exercises the LOC/SKIP decode path against a small
// table of hand-picked words, in the teacher's datadriven test style
// (cockroachdb/datadriven). Commands:
//
//	encode-loc kind=alloc|free vdev=N msid=N offset=N run=N
//	encode-skip n=N
//	decode word=HEX
func TestDecodeTable(t *testing.T) {
	datadriven.RunTest(t, "testdata/codec", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "encode-loc":
			var vdev, msid, offset, run uint64
			kind := EntryAlloc
			for _, arg := range d.CmdArgs {
				val := arg.Vals[0]
				switch arg.Key {
				case "kind":
					if val == "free" {
						kind = EntryFree
					}
				case "vdev":
					vdev, _ = strconv.ParseUint(val, 10, 64)
				case "msid":
					msid, _ = strconv.ParseUint(val, 10, 64)
				case "offset":
					offset, _ = strconv.ParseUint(val, 10, 64)
				case "run":
					run, _ = strconv.ParseUint(val, 10, 64)
				}
			}
			w, err := EncodeLoc(Entry{Kind: kind, Vdev: uint32(vdev), MsID: uint32(msid), Offset: offset, Run: run})
			if err != nil {
				return fmt.Sprintf("error: %v\n", err)
			}
			return fmt.Sprintf("word=%#016x\n", w)

		case "encode-skip":
			var n uint64
			for _, arg := range d.CmdArgs {
				if arg.Key == "n" {
					n, _ = strconv.ParseUint(arg.Vals[0], 10, 64)
				}
			}
			w, err := EncodeSkip(n)
			if err != nil {
				return fmt.Sprintf("error: %v\n", err)
			}
			return fmt.Sprintf("word=%#016x\n", w)

		case "decode":
			var w uint64
			for _, arg := range d.CmdArgs {
				if arg.Key == "word" {
					v := strings.TrimPrefix(arg.Vals[0], "0x")
					w, _ = strconv.ParseUint(v, 16, 64)
				}
			}
			kind, entry, skip := Decode(w)
			var sb strings.Builder
			switch kind {
			case KindLoc:
				fmt.Fprintf(&sb, "loc kind=%d vdev=%d msid=%d offset=%d run=%d\n",
					entry.Kind, entry.Vdev, entry.MsID, entry.Offset, entry.Run)
			case KindSkip:
				fmt.Fprintf(&sb, "skip n=%d\n", skip)
			}
			return sb.String()

		default:
			t.Fatalf("unknown command %q", d.Cmd)
			return ""
		}
	})
}
