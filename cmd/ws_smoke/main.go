package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"mining_webapp/internal/db"
	"mining_webapp/internal/domain"
	"mining_webapp/internal/repository"
	"mining_webapp/internal/service"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	ur := repository.NewUserRepository(pool)
	ctx := context.Background()

	u, err := ur.GetByTgID(ctx, 3001)
	if err != nil {
		u = &domain.User{TgID: 3001, Username: "smoke", FirstName: "Smoke"}
		if err := ur.Create(ctx, u); err != nil {
			log.Fatalf("create user: %v", err)
		}
	}

	service.InitJWT()
	token, err := service.GenerateJWT(u.ID)
	if err != nil {
		log.Fatalf("gen token: %v", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	wsURL := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// read a few live state frames and check pending never decreases
	var lastPending float64 = -1
	for i := 0; i < 5; i++ {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read frame %d: %v", i, err)
		}

		var frame struct {
			Type string `json:"type"`
			Data struct {
				Pending float64 `json:"pending"`
				TierID  int     `json:"tier_id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			log.Fatalf("bad frame: %v", err)
		}
		if frame.Type != "session_state" {
			log.Printf("skipping frame type=%s", frame.Type)
			continue
		}

		log.Printf("tier=%d pending=%.6f", frame.Data.TierID, frame.Data.Pending)
		if frame.Data.Pending < lastPending {
			log.Fatalf("pending went backwards: %.6f -> %.6f", lastPending, frame.Data.Pending)
		}
		lastPending = frame.Data.Pending
	}

	log.Println("smoke test finished")
}
