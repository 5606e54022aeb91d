package testutil

import (
	"strings"
	"testing"
)

func TestDBName(t *testing.T) {
	if got := DBName("TestCreate/dup email"); got != "cg_test_TestCreate_dup_email" {
		t.Errorf("DBName() = %q", got)
	}

	long := "TestSomethingWithAVeryLongName/and_a_subtest_that_keeps_going_"
	a, b := DBName(long+"one"), DBName(long+"two")
	if len(a) > 63 || len(b) > 63 {
		t.Errorf("names exceed 63 bytes: %d, %d", len(a), len(b))
	}
	if a == b {
		t.Errorf("long names collided: %q", a)
	}
	if !strings.HasPrefix(a, TestDBPrefix+"_") {
		t.Errorf("DBName() = %q, want prefix %q", a, TestDBPrefix)
	}
}
