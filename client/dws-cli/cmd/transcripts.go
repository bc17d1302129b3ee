package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/bigballadanny/dwschatbot/pkg/httpmiddleware"
)

var (
	uploadTitle         string
	uploadSource        string
	listSourceGlob      string
	reprocessSourceGlob string
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file-path]",
	Short: "Upload a transcript for processing",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uploadTranscript(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show a document with its processing state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printJSON(doRequest(http.MethodGet, transcriptAddr+"/api/v1/transcripts/"+args[0], "", nil))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your documents",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		endpoint := transcriptAddr + "/api/v1/transcripts"
		if listSourceGlob != "" {
			endpoint += "?source=" + url.QueryEscape(listSourceGlob)
		}
		printJSON(doRequest(http.MethodGet, endpoint, "", nil))
	},
}

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "List documents whose processing stopped moving",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printJSON(doRequest(http.MethodGet, transcriptAddr+"/api/v1/processing/stuck", "", nil))
	},
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [document-id]",
	Short: "Run documents through the pipeline again",
	Long:  `Reprocess one document by id, or every document whose source tag matches --source-glob.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		switch {
		case len(args) == 1 && reprocessSourceGlob != "":
			log.Fatalf("Pass either a document id or --source-glob, not both")
		case len(args) == 1:
			printJSON(doRequest(http.MethodPost, transcriptAddr+"/api/v1/transcripts/"+args[0]+"/reprocess", "", nil))
		case reprocessSourceGlob != "":
			payload, err := json.Marshal(map[string]string{"source_glob": reprocessSourceGlob})
			if err != nil {
				log.Fatalf("Error creating JSON payload: %v", err)
			}
			printJSON(doRequest(http.MethodPost, transcriptAddr+"/api/v1/processing/reprocess", "application/json", bytes.NewReader(payload)))
		default:
			log.Fatalf("Pass a document id or --source-glob")
		}
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [document-id]",
	Short: "Show the processing audit trail of a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printJSON(doRequest(http.MethodGet, transcriptAddr+"/api/v1/transcripts/"+args[0]+"/audit", "", nil))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document with its chunks and vectors",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doRequest(http.MethodDelete, transcriptAddr+"/api/v1/transcripts/"+args[0], "", nil)
		fmt.Println("Deleted.")
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream processing progress for your documents",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		watchProgress()
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadTitle, "title", "", "document title (defaults to the file name)")
	uploadCmd.Flags().StringVar(&uploadSource, "source", "", "source tag used in citations, e.g. \"Call 12\"")
	listCmd.Flags().StringVar(&listSourceGlob, "source-glob", "", "only documents whose source tag matches this glob")
	reprocessCmd.Flags().StringVar(&reprocessSourceGlob, "source-glob", "", "reprocess every document whose source tag matches this glob")

	rootCmd.AddCommand(uploadCmd, statusCmd, listCmd, stuckCmd, reprocessCmd, auditCmd, deleteCmd, watchCmd)
}

func uploadTranscript(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Error reading %s: %v", path, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		log.Fatalf("Error building upload: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		log.Fatalf("Error building upload: %v", err)
	}
	if uploadTitle != "" {
		writer.WriteField("title", uploadTitle)
	}
	if uploadSource != "" {
		writer.WriteField("source", uploadSource)
	}
	if err := writer.Close(); err != nil {
		log.Fatalf("Error building upload: %v", err)
	}

	resp := doRequest(http.MethodPost, transcriptAddr+"/api/v1/transcripts", writer.FormDataContentType(), &body)

	var result map[string]string
	if err := json.Unmarshal(resp, &result); err != nil {
		log.Fatalf("Error decoding response: %v", err)
	}
	fmt.Printf("Upload accepted.\nDocument ID: %s\n", result["document_id"])
	fmt.Println("To follow processing, run: dws watch")
}

func watchProgress() {
	requireUser()

	base, err := url.Parse(transcriptAddr)
	if err != nil {
		log.Fatalf("Invalid transcript service address: %v", err)
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: base.Host, Path: "/ws/progress"}
	log.Printf("Connecting to %s", u.String())

	header := http.Header{}
	header.Set(httpmiddleware.HeaderUserID, userID)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	fmt.Println("WebSocket connected. Waiting for progress updates...")

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}
		printJSON(message)
	}
}
