package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"

	"lumina/internal/game"
)

func main() {
	log.SetPrefix("[client] ")
	log.SetFlags(log.LstdFlags)

	var (
		campaignID = flag.String("campaign", "", "campaign id to join")
		create     = flag.String("create", "", "create a campaign with this name, then join it")
		invite     = flag.String("invite", "", "redeem an invite code, then join that campaign")
		user       = flag.String("user", "", "username for login")
		pass       = flag.String("pass", "", "password for login")
		register   = flag.Bool("register", false, "register a new account before logging in")
		name       = flag.String("name", "Adventurer", "display name shown on cursors and drags")
		colorHex   = flag.String("color", "#4f9dff", "presence color, #rrggbb")
	)
	flag.Parse()

	if *user != "" {
		var err error
		if *register {
			_, err = game.Register(*user, *pass)
		} else {
			_, err = game.Login(*user, *pass)
		}
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
		log.Printf("logged in as %s", *user)
	}
	if game.LoadToken() == "" {
		fmt.Fprintln(os.Stderr, "no cached token; run with -user and -pass first")
		os.Exit(1)
	}

	id := *campaignID
	switch {
	case *create != "":
		c, err := game.CreateCampaign(*create)
		if err != nil {
			log.Fatalf("create campaign: %v", err)
		}
		log.Printf("campaign %q created, invite code %s", c.Name, c.InviteCode)
		id = c.ID
	case *invite != "":
		joined, err := game.JoinByInvite(*invite)
		if err != nil {
			log.Fatalf("redeem invite: %v", err)
		}
		id = joined
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "pass -campaign, -create or -invite")
		os.Exit(1)
	}

	s, err := game.NewSession(id, *name, *colorHex)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer s.Close()

	ebiten.SetWindowSize(1280, 800)
	ebiten.SetWindowTitle("Lumina")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game.NewApp(s)); err != nil {
		log.Fatal(err)
	}
}
