package pipeline

import (
	"testing"

	"github.com/example/awsdeploy/internal/provision"
)

func TestLookupOutputFirstMatchWins(t *testing.T) {
	s := NewState()
	s.RecordOutputs("demo", []provision.Output{
		{Key: "BucketName", Value: "first"},
		{Key: "BucketName", Value: "second"},
	})
	v, ok := s.LookupOutput("demo", "BucketName")
	if !ok || v != "first" {
		t.Fatalf("lookup = %q, %t; first match must be authoritative", v, ok)
	}
}

func TestLookupOutputMissing(t *testing.T) {
	s := NewState()
	if _, ok := s.LookupOutput("demo", "BucketName"); ok {
		t.Fatal("lookup on empty state should report not found")
	}
	s.RecordOutputs("demo", []provision.Output{{Key: "Other", Value: "x"}})
	if _, ok := s.LookupOutput("demo", "BucketName"); ok {
		t.Fatal("lookup of absent key should report not found")
	}
}

func TestBucketFromOutput(t *testing.T) {
	cases := map[string]string{
		"arn:aws:s3:::site-bucket": "site-bucket",
		"site-bucket":              "site-bucket",
	}
	for in, want := range cases {
		if got := bucketFromOutput(in); got != want {
			t.Errorf("bucketFromOutput(%q) = %q, want %q", in, got, want)
		}
	}
}
