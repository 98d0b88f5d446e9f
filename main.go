package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", ":3001", "HTTP listen address")
	clientDir := flag.String("client", "", "Path to client dist directory (optional)")
	dbPath := flag.String("db", "blob-blast.db", "SQLite database path (empty disables accounts and match history)")
	flag.Parse()

	var db *DB
	if *dbPath != "" {
		var err error
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
	}

	hub := NewHub(db)
	go hub.Run()
	go hub.rooms.Janitor(time.Minute, nil)

	mux := SetupRoutes(hub, *clientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Blob Blast server starting on %s", *addr)
		if *clientDir != "" {
			log.Printf("Serving client files from %s", *clientDir)
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
}
