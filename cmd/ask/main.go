package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:3180", "Questor server URL")
	maxSteps := flag.Int("max-steps", 0, "Step budget for the run (0 = server default)")
	follow := flag.Bool("follow", true, "Stream run progress while waiting")
	flag.Parse()

	goal := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if goal == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [flags] <goal>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	id, err := submitRun(*server, goal, *maxSteps)
	if err != nil {
		printError("Submit failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("run %s\n", id)

	if *follow {
		streamEvents(*server, id)
	}

	run, err := waitForRun(*server, id)
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}

	fmt.Println("---")
	fmt.Println(run.Response)
	if run.Status != "done" {
		os.Exit(1)
	}
}

type runView struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Response   string `json:"response"`
	StepsTaken int    `json:"steps_taken"`
}

func submitRun(server, goal string, maxSteps int) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"goal":      goal,
		"max_steps": maxSteps,
	})

	resp, err := http.Post(server+"/api/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// streamEvents prints SSE progress lines until the run's stream closes.
// Stream failures are not fatal; polling below still gets the result.
func streamEvents(server, id string) {
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Get(server + "/api/runs/" + id + "/events")
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type   string `json:"type"`
			Step   int    `json:"step"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) != nil {
			continue
		}
		switch ev.Type {
		case "started":
			fmt.Printf("\033[36m[started]\033[0m %s\n", ev.Detail)
		case "planned":
			for _, line := range strings.Split(ev.Detail, "\n") {
				fmt.Printf("\033[36m[plan]\033[0m %s\n", line)
			}
		case "step":
			fmt.Printf("\033[36m[step %d]\033[0m %s\n", ev.Step+1, ev.Detail)
		case "finished", "failed":
			fmt.Printf("\033[36m[%s]\033[0m\n", ev.Type)
			return
		}
	}
}

func waitForRun(server, id string) (*runView, error) {
	deadline := time.Now().Add(10 * time.Minute)
	for time.Now().Before(deadline) {
		resp, err := http.Get(server + "/api/runs/" + id)
		if err != nil {
			return nil, err
		}
		var run runView
		err = json.NewDecoder(resp.Body).Decode(&run)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if run.Status == "done" || run.Status == "failed" {
			return &run, nil
		}
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("timed out waiting for run %s", id)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
