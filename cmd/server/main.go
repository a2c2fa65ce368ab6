package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lumina/internal/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func wsHandler(hub *server.Hub, auth *server.Auth, store *server.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.ParseToken(server.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		u, err := store.UserByID(userID)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade:", err)
			return
		}
		hub.HandleWS(conn, u.ID, u.Username)
	}
}

func main() {
	log.SetPrefix("[server] ")
	log.SetFlags(log.LstdFlags)

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	store, err := server.OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	auth, err := server.NewAuth(store, cfg)
	if err != nil {
		log.Fatal(err)
	}

	hub := server.NewHub(store)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", auth.HandleRegister)
	mux.HandleFunc("/api/login", auth.HandleLogin)
	mux.HandleFunc("/ws", wsHandler(hub, auth, store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Println("listening on", cfg.Addr)
	log.Fatal(s.ListenAndServe())
}
