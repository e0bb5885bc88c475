package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/truthtally/truthtally/internal/client"
)

var users = []string{
	"ada@example.com",
	"grace@example.com",
	"linus@example.com",
	"margaret@example.com",
	"ken@example.com",
	"barbara@example.com",
}

var politicians = []client.Politician{
	{Name: "Maria Alvarez", Party: "Progress", Office: "Governor", Region: "Westland", TermStart: "2021-01-15", TermEnd: "2025-01-15"},
	{Name: "Tom Brennan", Party: "Civic Union", Office: "Senator", Region: "Northfield", TermStart: "2019-01-03", TermEnd: "2025-01-03"},
	{Name: "Priya Natarajan", Party: "Independent", Office: "Mayor", Region: "Riverton", TermStart: "2022-07-01", TermEnd: "2026-07-01"},
}

var statements = []struct {
	politician int
	text       string
	url        string
	date       string
}{
	{0, "We will build 10,000 units of affordable housing by the end of my first term.", "https://example.com/housing", "2020-10-02"},
	{0, "State income tax will not go up while I am governor.", "https://example.com/tax", "2020-09-14"},
	{1, "I will hold a town hall in every county each year.", "https://example.com/townhalls", "2018-08-20"},
	{1, "Broadband will reach every rural school within two years.", "https://example.com/broadband", "2018-10-11"},
	{2, "The downtown bike lane network will be finished by 2024.", "https://example.com/bikes", "2022-05-30"},
	{2, "Bus fares stay frozen for the whole term.", "https://example.com/fares", "2022-06-12"},
}

const password = "seed-password-123"

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "truthtally server URL")
	flag.Parse()

	log.Printf("Seeding database at %s...\n", *baseURL)

	var clients []*client.Client
	for _, email := range users {
		c := client.New(*baseURL)
		if _, err := c.RegisterAndLogin(email, password); err != nil {
			log.Fatalf("register %s: %v", email, err)
		}
		log.Printf("✓ Signed in: %s", email)
		clients = append(clients, c)
	}

	var politicianIDs []string
	for _, p := range politicians {
		pol, err := clients[rand.Intn(len(clients))].CreatePolitician(p)
		if err != nil {
			log.Printf("✗ Failed to create politician: %v", err)
			continue
		}
		politicianIDs = append(politicianIDs, pol.ID)
		log.Printf("✓ Politician %s: %s", pol.ID, pol.Name)
	}
	if len(politicianIDs) != len(politicians) {
		log.Fatalf("could not create every politician")
	}

	type submitted struct {
		id     string
		author *client.Client
	}
	var created []submitted
	for _, s := range statements {
		author := clients[rand.Intn(len(clients))]
		stmt, err := author.CreateStatement(client.Statement{
			PoliticianID: politicianIDs[s.politician],
			Text:         s.text,
			SourceURL:    s.url,
			DateMade:     s.date,
		})
		if err != nil {
			log.Printf("✗ Failed to create statement: %v", err)
			continue
		}
		created = append(created, submitted{id: stmt.ID, author: author})
		log.Printf("✓ Statement %s", stmt.ID)
	}

	// Every user votes on every statement. The first statement is voted
	// down by most users so it ends up flagged.
	votes, flagged := 0, 0
	for i, s := range created {
		for _, c := range clients {
			value := 1
			if rand.Float32() < 0.2 || (i == 0 && rand.Float32() < 0.8) {
				value = -1
			}
			res, err := c.Vote(s.id, value)
			if err != nil {
				log.Printf("✗ Failed to vote: %v", err)
				continue
			}
			votes++
			if res.NewlyFlagged {
				flagged++
			}
		}
	}
	log.Printf("✓ Cast %d votes, %d statements flagged", votes, flagged)

	// The author of the last statement asks for it to be removed; it shows
	// up in the moderation queue.
	if len(created) > 0 {
		last := created[len(created)-1]
		if _, err := last.author.DeleteStatement(last.id); err != nil {
			var apiErr *client.APIError
			if !errors.As(err, &apiErr) {
				log.Fatalf("delete request: %v", err)
			}
			log.Printf("✗ Delete request refused: %s", apiErr.Message)
		} else {
			log.Printf("✓ Requested deletion of %s", last.id)
		}
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:       %d\n", len(users))
	fmt.Printf("Politicians: %d\n", len(politicianIDs))
	fmt.Printf("Statements:  %d\n", len(created))
	fmt.Printf("Votes:       %d\n", votes)
	fmt.Println("\nPromote a moderator with: truthtally promote", users[0], "mod")
}
