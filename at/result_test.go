package at_test

import (
	"bytes"
	"testing"

	"i4.energy/across/modemd/at"
)

func TestResultIterRegistration(t *testing.T) {
	r := &at.Result{
		Lines: []string{`+CREG: 1,"001A","00C1",7`},
		Final: "OK",
	}
	iter := at.NewResultIter(r)

	if !iter.Next("+CREG:") {
		t.Fatal("Next(+CREG:) failed")
	}
	if status, ok := iter.NextNumber(); !ok || status != 1 {
		t.Errorf("expected status 1, got %d (%v)", status, ok)
	}
	lac, ok := iter.NextString()
	if !ok || lac != "001A" {
		t.Errorf("expected lac 001A, got %q (%v)", lac, ok)
	}
	ci, ok := iter.NextString()
	if !ok || ci != "00C1" {
		t.Errorf("expected ci 00C1, got %q (%v)", ci, ok)
	}
	if tech, ok := iter.NextNumber(); !ok || tech != 7 {
		t.Errorf("expected tech 7, got %d (%v)", tech, ok)
	}
	if _, ok := iter.NextNumber(); ok {
		t.Error("NextNumber should fail at end of line")
	}
	if iter.FinalResponse() != "OK" {
		t.Errorf("expected final OK, got %q", iter.FinalResponse())
	}
}

func TestResultIterNext(t *testing.T) {
	r := &at.Result{Lines: []string{"+CMGL: 1", "garbage", "+CMGL:   2", "+CSQ: 3"}}

	t.Run("Scans forward and skips spaces", func(t *testing.T) {
		iter := at.NewResultIter(r)
		var got []int
		for iter.Next("+CMGL:") {
			n, ok := iter.NextNumber()
			if !ok {
				t.Fatalf("NextNumber failed on %q", iter.RawLine())
			}
			got = append(got, n)
		}
		if len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Errorf("expected [1 2], got %v", got)
		}
	})

	t.Run("Failed Next leaves the cursor unmoved", func(t *testing.T) {
		iter := at.NewResultIter(r)
		if !iter.Next("+CMGL:") {
			t.Fatal("Next(+CMGL:) failed")
		}
		if iter.Next("+CPIN:") {
			t.Fatal("Next(+CPIN:) should fail")
		}
		if iter.RawLine() != "+CMGL: 1" {
			t.Errorf("cursor moved to %q", iter.RawLine())
		}
		if !iter.Next("+CSQ:") {
			t.Error("Next(+CSQ:) should still find a later line")
		}
	})

	t.Run("Empty prefix walks every line", func(t *testing.T) {
		iter := at.NewResultIter(r)
		count := 0
		for iter.Next("") {
			count++
		}
		if count != len(r.Lines) {
			t.Errorf("expected %d lines, got %d", len(r.Lines), count)
		}
	})

	t.Run("Accessors fail before the first Next", func(t *testing.T) {
		iter := at.NewResultIter(r)
		if _, ok := iter.NextNumber(); ok {
			t.Error("NextNumber should fail without a current line")
		}
		if iter.SkipNext() || iter.OpenList() {
			t.Error("SkipNext/OpenList should fail without a current line")
		}
	})

	t.Run("Nil result", func(t *testing.T) {
		iter := at.NewResultIter(nil)
		if iter.Next("") {
			t.Error("Next on nil result should fail")
		}
		if iter.FinalResponse() != "" || iter.PDU() != "" {
			t.Error("nil result should have no final response or PDU")
		}
	})
}

func TestResultIterStrings(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []string
		failAt   int // index of the call expected to fail, -1 for none
	}{
		{name: "Quoted strings", line: `+X: "a","b c"`, expected: []string{"a", "b c"}, failAt: -1},
		{name: "Omitted field", line: `+X: ,"b"`, expected: []string{"", "b"}, failAt: -1},
		{name: "Unterminated quote", line: `+X: "abc`, expected: []string{""}, failAt: 0},
		{name: "Unquoted field", line: `+X: 12`, expected: []string{""}, failAt: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iter := at.NewResultIter(&at.Result{Lines: []string{tt.line}})
			if !iter.Next("+X:") {
				t.Fatal("Next failed")
			}
			for i, want := range tt.expected {
				got, ok := iter.NextString()
				if i == tt.failAt {
					if ok {
						t.Errorf("call %d: expected failure, got %q", i, got)
					}
					return
				}
				if !ok || got != want {
					t.Errorf("call %d: expected %q, got %q (%v)", i, want, got, ok)
				}
			}
		})
	}
}

func TestResultIterUnquotedString(t *testing.T) {
	iter := at.NewResultIter(&at.Result{Lines: []string{"+CPIN: SIM PIN,(x)"}})
	if !iter.Next("+CPIN:") {
		t.Fatal("Next failed")
	}
	s, ok := iter.NextUnquotedString()
	if !ok || s != "SIM PIN" {
		t.Errorf("expected SIM PIN, got %q (%v)", s, ok)
	}
	if !iter.OpenList() {
		t.Fatal("OpenList failed")
	}
	if s, ok := iter.NextUnquotedString(); !ok || s != "x" {
		t.Errorf("expected x, got %q (%v)", s, ok)
	}
	if _, ok := iter.NextUnquotedString(); ok {
		t.Error("NextUnquotedString should stop at the closing parenthesis")
	}
	if !iter.CloseList() {
		t.Error("CloseList failed")
	}
}

func TestResultIterHexString(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []byte
		ok       bool
	}{
		{name: "Quoted", line: `+CRSM: 144,0,"98765432"`, expected: []byte{0x98, 0x76, 0x54, 0x32}, ok: true},
		{name: "Unquoted", line: `+CRSM: 144,0,0a0B`, expected: []byte{0x0a, 0x0b}, ok: true},
		{name: "Odd digit count", line: `+CRSM: 144,0,"ABC"`, ok: false},
		{name: "Omitted", line: `+CRSM: 144,0,`, expected: []byte{}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iter := at.NewResultIter(&at.Result{Lines: []string{tt.line}})
			iter.Next("+CRSM:")
			iter.NextNumber()
			iter.NextNumber()
			got, ok := iter.NextHexString()
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && !bytes.Equal(got, tt.expected) {
				t.Errorf("expected %X, got %X", tt.expected, got)
			}
		})
	}
}

func TestResultIterLists(t *testing.T) {
	t.Run("CNMI ranges", func(t *testing.T) {
		iter := at.NewResultIter(&at.Result{Lines: []string{"+CNMI: (0-3),(0-3),(0,2),(0-2),(0,1)"}})
		if !iter.Next("+CNMI:") {
			t.Fatal("Next failed")
		}

		var masks [5]int
		for opt := range masks {
			if !iter.OpenList() {
				t.Fatalf("OpenList %d failed", opt)
			}
			for {
				lo, hi, ok := iter.NextRange()
				if !ok {
					break
				}
				for m := lo; m <= hi; m++ {
					masks[opt] |= 1 << m
				}
			}
			if !iter.CloseList() {
				t.Fatalf("CloseList %d failed", opt)
			}
		}

		expected := [5]int{0xf, 0xf, 0x5, 0x7, 0x3}
		if masks != expected {
			t.Errorf("expected %v, got %v", expected, masks)
		}
	})

	t.Run("CPMS string lists", func(t *testing.T) {
		iter := at.NewResultIter(&at.Result{Lines: []string{`+CPMS: ("ME","SM"),("ME"),("ME","SM","MT")`}})
		iter.Next("+CPMS:")

		var counts []int
		for iter.OpenList() {
			n := 0
			for {
				if _, ok := iter.NextString(); !ok {
					break
				}
				n++
			}
			if !iter.CloseList() {
				t.Fatal("CloseList failed")
			}
			counts = append(counts, n)
		}
		if len(counts) != 3 || counts[0] != 2 || counts[1] != 1 || counts[2] != 3 {
			t.Errorf("expected [2 1 3], got %v", counts)
		}
	})

	t.Run("SkipNext steps over nested fields", func(t *testing.T) {
		iter := at.NewResultIter(&at.Result{Lines: []string{`+COPS: (2,"Op, One","O1","23401",2),(1,"Op2","O2","23402",0),,(0,1,2),(0,1)`}})
		iter.Next("+COPS:")

		n := 0
		for iter.SkipNext() {
			n++
		}
		if n != 5 {
			t.Errorf("expected 5 fields, got %d", n)
		}
	})

	t.Run("Bare range", func(t *testing.T) {
		iter := at.NewResultIter(&at.Result{Lines: []string{"+CMGF: (0)"}})
		iter.Next("+CMGF:")
		iter.OpenList()
		lo, hi, ok := iter.NextRange()
		if !ok || lo != 0 || hi != 0 {
			t.Errorf("expected 0-0, got %d-%d (%v)", lo, hi, ok)
		}
		if _, _, ok := iter.NextRange(); ok {
			t.Error("NextRange should fail at the closing parenthesis")
		}
	})
}

func TestResultIterPDU(t *testing.T) {
	r := &at.Result{Lines: []string{"+CMT: ,23"}, PDU: "0791AB"}
	iter := at.NewResultIter(r)
	if !iter.Next("+CMT:") {
		t.Fatal("Next failed")
	}
	if !iter.SkipNext() {
		t.Fatal("SkipNext over an empty field failed")
	}
	if n, ok := iter.NextNumber(); !ok || n != 23 {
		t.Errorf("expected 23, got %d (%v)", n, ok)
	}
	if iter.PDU() != "0791AB" {
		t.Errorf("expected PDU 0791AB, got %q", iter.PDU())
	}
}
