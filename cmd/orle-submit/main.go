// Command orle-submit drops a job document into a world's job-queue directory.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/AaronLay10/orle/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "universe.yml", "path to the universe config file")
		worldID    = flag.Int("world", 0, "id of the world whose queue receives the job")
		local      = flag.String("local", "", "value of $LOCAL in the universe config (default: working directory)")
		prefix     = flag.String("prefix", "", "job file name prefix (default: the job name)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] job.yml\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	u, err := config.LoadUniverse(*configPath, config.LoadOptions{Local: *local})
	if err != nil {
		log.Fatalf("failed to load universe config: %v", err)
	}
	w, err := u.World(*worldID)
	if err != nil {
		log.Fatalf("%v", err)
	}

	b, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to read job: %v", err)
	}
	job, err := config.ParseJobDraft(b, flag.Arg(0))
	if err != nil {
		log.Fatalf("invalid job: %v", err)
	}
	if _, err := w.Env(job.ID); err != nil {
		log.Fatalf("%v", err)
	}

	p := *prefix
	if p == "" {
		p = job.Name
	}
	path, err := config.WriteJob(w.JobDir, p, job)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(path)
}
