package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // ⚠️ Start small. Each pair is two users and two sockets.
	MsgCount  = 20 // Messages per user
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// Pairs: user_0_a befriends user_0_b, user_1_a befriends user_1_b...
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	connA := dial(tokenA, userA)
	connB := dial(tokenB, userB)
	if connA == nil || connB == nil {
		return
	}
	defer connA.Close()
	defer connB.Close()

	// A requests, B accepts, A waits for the new-friend frame carrying the
	// connection id both sides will chat on.
	send(connA, map[string]any{"source": "request.connect", "username": userB})
	if waitFor(connB, "request.connect") == nil {
		log.Printf("❌ %s never saw the request", userB)
		return
	}
	send(connB, map[string]any{"source": "request.accept", "username": userA})

	friend := waitFor(connA, "friend.new")
	if friend == nil {
		log.Printf("❌ %s never saw friend.new", userA)
		return
	}
	connectionID := int(friend["id"].(float64))

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, connA, connectionID, userA)
	go spamChat(&wsWg, connB, connectionID, userB)
	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(username, password string) string {
	postJSON("/register", map[string]string{
		"username": username, "password": password,
		"first_name": "Load", "last_name": "Test",
	})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func dial(token, username string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", username, err)
		return nil
	}
	return conn
}

func send(conn *websocket.Conn, frame map[string]any) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("❌ Write Fail: %v", err)
	}
}

// waitFor reads frames until one with the wanted source arrives, returning
// its data object.
func waitFor(conn *websocket.Conn, source string) map[string]any {
	deadline := time.Now().Add(10 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var frame struct {
			Source string         `json:"source"`
			Data   map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return nil
		}
		if frame.Source == source {
			conn.SetReadDeadline(time.Time{})
			return frame.Data
		}
	}
	return nil
}

func spamChat(wg *sync.WaitGroup, conn *websocket.Conn, connectionID int, username string) {
	defer wg.Done()

	for i := 0; i < MsgCount; i++ {
		send(conn, map[string]any{
			"source":       "message.send",
			"connectionId": connectionID,
			"message":      fmt.Sprintf("LoadTest Msg %d from %s", i, username),
		})
		// Small sleep to prevent instant localhost bottleneck
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", username, MsgCount)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
