package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/isak-aslund/airologV2-ralph/internal/meta"
	"github.com/isak-aslund/airologV2-ralph/internal/storage"
	"github.com/isak-aslund/airologV2-ralph/internal/ulog"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "extract":
		extractCmd(os.Args[2:])
	case "params":
		paramsCmd(os.Args[2:])
	case "upload":
		uploadCmd(os.Args[2:])
	case "list":
		listCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`airologctl %s (built %s) <command> [options]

Commands:
  extract  --in <file.ulg> [--json]
  params   --in <file.ulg>
  upload   --in <file.ulg> --title <title> --pilot <pilot> --model <model> [--serial <sn>] [--comment <text>] [--tags <a,b>] [--server <url>]
  list     [--search <text>] [--page <n>] [--per-page <25|50|100>] [--server <url>]
`, version, buildDate)
}

func extractCmd(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	in := fs.String("in", "", "input .ulg file")
	asJSON := fs.Bool("json", false, "print metadata as JSON")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}

	if _, err := os.Stat(*in); err != nil {
		fmt.Println("extract:", err)
		os.Exit(1)
	}
	md := meta.ExtractFile(*in, filepath.Base(*in))

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(md); err != nil {
			fmt.Println("encode:", err)
			os.Exit(1)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Duration\t%s\n", durationField(md.DurationSeconds))
	fmt.Fprintf(w, "Flight date\t%s\n", dateField(md.FlightDate))
	fmt.Fprintf(w, "Serial number\t%s\n", stringField(md.SerialNumber))
	fmt.Fprintf(w, "Drone model\t%s\n", stringField(md.DroneModel))
	fmt.Fprintf(w, "Takeoff\t%s\n", coordinatesField(md.TakeoffLat, md.TakeoffLon))
	fmt.Fprintf(w, "Flight modes\t%s\n", listField(md.FlightModes))
	fmt.Fprintf(w, "Log identifier\t%s\n", stringField(md.LogIdentifier))
	w.Flush()
}

func paramsCmd(args []string) {
	fs := flag.NewFlagSet("params", flag.ExitOnError)
	in := fs.String("in", "", "input .ulg file")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}

	log, err := ulog.ParseFile(*in)
	if err != nil {
		fmt.Println("parse:", err)
		os.Exit(1)
	}
	params := meta.ListParameters(log)
	if len(params) == 0 {
		fmt.Println("No parameters recorded")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE")
	for _, p := range params {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Value.String())
	}
	w.Flush()
}

func uploadCmd(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	in := fs.String("in", "", "input .ulg file")
	serverURL := fs.String("server", "http://localhost:8080", "airologd base URL")
	title := fs.String("title", "", "flight title")
	pilot := fs.String("pilot", "", "pilot name")
	model := fs.String("model", "", "drone model")
	serial := fs.String("serial", "", "serial number override")
	comment := fs.String("comment", "", "flight comment")
	tags := fs.String("tags", "", "comma-separated tags")
	fs.Parse(args)

	if *in == "" || *title == "" || *pilot == "" || *model == "" {
		fmt.Println("required: --in, --title, --pilot, --model")
		os.Exit(1)
	}

	f, err := os.Open(*in)
	if err != nil {
		fmt.Println("open input:", err)
		os.Exit(1)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fmt.Println("stat input:", err)
		os.Exit(1)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fields := map[string]string{
			"title":         *title,
			"pilot":         *pilot,
			"drone_model":   *model,
			"serial_number": *serial,
			"comment":       *comment,
			"tags":          *tags,
		}
		for name, value := range fields {
			if value == "" {
				continue
			}
			if err := mw.WriteField(name, value); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", filepath.Base(*in))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	url := strings.TrimRight(*serverURL, "/") + "/api/logs"
	req, err := http.NewRequest(http.MethodPost, url, pr)
	if err != nil {
		fmt.Println("build request:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("upload:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fmt.Printf("upload failed: %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}

	var rec storage.FlightLog
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		fmt.Println("decode response:", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %s (%s) as %s\n", filepath.Base(*in), humanize.Bytes(uint64(info.Size())), rec.ID)
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "airologd base URL")
	search := fs.String("search", "", "free-text search")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 25, "page size (25, 50 or 100)")
	fs.Parse(args)

	url := fmt.Sprintf("%s/api/logs?page=%d&per_page=%d", strings.TrimRight(*serverURL, "/"), *page, *perPage)
	if *search != "" {
		url += "&search=" + strings.ReplaceAll(*search, " ", "+")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Println("list:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		fmt.Printf("list failed: %s: %s\n", resp.Status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}

	var pageResp storage.Page
	if err := json.NewDecoder(resp.Body).Decode(&pageResp); err != nil {
		fmt.Println("decode response:", err)
		os.Exit(1)
	}
	if len(pageResp.Items) == 0 {
		fmt.Println("No flight logs")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPILOT\tMODEL\tDATE\tDURATION")
	for _, rec := range pageResp.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.Title,
			rec.Pilot,
			rec.DroneModel,
			dateField(rec.FlightDate),
			durationField(rec.DurationSeconds),
		)
	}
	w.Flush()
	fmt.Printf("Page %d of %d (%d total)\n", pageResp.Page, pageResp.TotalPages, pageResp.Total)
}

func stringField(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func dateField(v *time.Time) string {
	if v == nil {
		return "-"
	}
	return v.Format("2006-01-02 15:04:05")
}

func durationField(v *float64) string {
	if v == nil {
		return "-"
	}
	return (time.Duration(*v * float64(time.Second))).Round(time.Second).String()
}

func coordinatesField(lat, lon *float64) string {
	if lat == nil || lon == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f, %.6f", *lat, *lon)
}

func listField(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
