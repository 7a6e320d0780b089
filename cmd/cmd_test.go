package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/jmorganca/subtok/api"
)

func TestShowInfo(t *testing.T) {
	t.Run("bare checkpoint", func(t *testing.T) {
		var b bytes.Buffer
		if err := showInfo(&api.ShowResponse{
			Name:      "demo",
			Marker:    "</w>",
			VocabSize: 8,
			Words:     3,
			Size:      412,
		}, &b); err != nil {
			t.Fatal(err)
		}

		expect := `  Checkpoint
    name          demo     
    vocab size    8        
    words         3        
    marker        </w>     
    size          412 B    
    modified      Never    

`

		if diff := cmp.Diff(expect, b.String()); diff != "" {
			t.Errorf("unexpected output (-want +got):\n%s", diff)
		}
	})

	t.Run("with merges", func(t *testing.T) {
		var b bytes.Buffer
		if err := showInfo(&api.ShowResponse{
			Name:      "demo",
			Marker:    "</w>",
			VocabSize: 8,
			Words:     3,
			Merges:    []string{"ab", "ab</w>"},
			Size:      412,
		}, &b); err != nil {
			t.Fatal(err)
		}

		expect := `  Checkpoint
    name          demo     
    vocab size    8        
    words         3        
    marker        </w>     
    size          412 B    
    modified      Never    

  Merges
    ab        
    ab</w>    

`

		if diff := cmp.Diff(expect, b.String()); diff != "" {
			t.Errorf("unexpected output (-want +got):\n%s", diff)
		}
	})
}

func TestDeleteHandler(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/delete" || r.Method != http.MethodDelete {
			t.Errorf("unexpected request to %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req api.DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Name == "demo" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf("checkpoint '%s' not found", req.Name)})
		}
	}))
	defer mockServer.Close()

	t.Setenv("SUBTOK_HOST", mockServer.URL)

	cmd := &cobra.Command{}
	cmd.SetContext(context.TODO())

	if err := DeleteHandler(cmd, []string{"demo"}); err != nil {
		t.Fatalf("DeleteHandler failed: %v", err)
	}

	err := DeleteHandler(cmd, []string{"missing"})
	if err == nil || !strings.Contains(err.Error(), "checkpoint 'missing' not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestEncodeHandler(t *testing.T) {
	var got api.TokenizeRequest
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tokenize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request to %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(api.TokenizeResponse{Ids: [][]int{{2, 2, 7, 7}}})
	}))
	defer mockServer.Close()

	t.Setenv("SUBTOK_HOST", mockServer.URL)

	cmd := &cobra.Command{}
	cmd.Flags().Int("window", 0, "")
	cmd.Flags().Bool("segmented", false, "")
	cmd.Flags().Set("window", "4")
	cmd.SetContext(context.TODO())

	if err := EncodeHandler(cmd, []string{"demo", "ab ab"}); err != nil {
		t.Fatalf("EncodeHandler failed: %v", err)
	}

	want := api.TokenizeRequest{Name: "demo", Lines: []string{"ab ab"}, Window: 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected request (-want +got):\n%s", diff)
	}
}

func TestTrainHandlerMissingCorpus(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringP("corpus", "f", "", "")
	cmd.Flags().Int("vocab-size", 0, "")
	cmd.Flags().Int("min-count", 0, "")
	cmd.Flags().Int("parallel", 0, "")
	cmd.SetContext(context.TODO())

	err := TrainHandler(cmd, []string{"demo"})
	if err == nil || !strings.Contains(err.Error(), "missing words to train on") {
		t.Fatalf("expected missing corpus error, got %v", err)
	}
}

func TestJoinIDs(t *testing.T) {
	cases := []struct {
		ids  []int
		want string
	}{
		{nil, ""},
		{[]int{7}, "7"},
		{[]int{3, 4, 6}, "3 4 6"},
	}

	for _, tt := range cases {
		if got := joinIDs(tt.ids); got != tt.want {
			t.Errorf("joinIDs(%v) = %q; want %q", tt.ids, got, tt.want)
		}
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "4", "6"})
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{3, 4, 6}, ids); diff != "" {
		t.Errorf("unexpected ids (-want +got):\n%s", diff)
	}

	if _, err := parseIDs([]string{"3", "x"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
