package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "invite":
		handleInvite(args)
	case "school":
		handleSchool(args)
	case "driver":
		handleDriver(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ridewatch auth <register|verify|login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "register":
		registerAccount(args[1:])
	case "verify":
		verifyAccount(args[1:])
	case "login":
		loginAccount(args[1:])
	case "logout":
		logoutAccount()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleInvite(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ridewatch invite <create|show|list>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "create":
		createInvite(args[1:])
	case "show":
		showInvite(args[1:])
	case "list":
		listInvites(args[1:])
	default:
		fmt.Printf("unknown invite command: %s\n", subCmd)
	}
}

func handleSchool(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ridewatch school <list|create>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listSchools(args[1:])
	case "create":
		createSchool(args[1:])
	default:
		fmt.Printf("unknown school command: %s\n", subCmd)
	}
}

func handleDriver(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ridewatch driver <list>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listDrivers(args[1:])
	default:
		fmt.Printf("unknown driver command: %s\n", subCmd)
	}
}

// Auth commands
func registerAccount(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{
		"email":       *email,
		"displayName": *name,
		"password":    *password,
	}

	result, status, err := postJSON("/api/auth/register", payload, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 202 {
		fmt.Printf("✓ Verification code sent to %s\n", *email)
		fmt.Println("  Run: ridewatch auth verify -email", *email, "-code <code>")
	} else {
		fmt.Printf("✗ Registration failed: %v\n", result)
	}
}

func verifyAccount(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	code := fs.String("code", "", "6-digit verification code")

	fs.Parse(args)

	if *email == "" || *code == "" {
		fmt.Println("Error: email and code are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "verificationCode": *code}
	result, status, err := postJSON("/api/auth/verify", payload, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
		}
		fmt.Printf("✓ Account verified: %s\n", *email)
	} else {
		fmt.Printf("✗ Verification failed: %v\n", result)
	}
}

func loginAccount(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	result, status, err := postJSON("/api/auth/login", payload, false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 200 {
		if token, ok := result["token"].(string); ok {
			saveToken(token)
			fmt.Printf("✓ Logged in as: %s\n", *email)
		}
	} else {
		fmt.Printf("✗ Login failed: %v\n", result)
	}
}

func logoutAccount() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	token := loadToken()
	if token == "" {
		fmt.Println("Not logged in")
		return
	}
	fmt.Printf("✓ Logged in (token: %s...)\n", token[:20])
}

// Invite commands
func createInvite(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	email := fs.String("email", "", "driver email")
	schoolID := fs.String("school", "", "school ID")

	fs.Parse(args)

	if *email == "" || *schoolID == "" {
		fmt.Println("Error: email and school are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "school_id": *schoolID}
	result, status, err := postJSON("/api/invites", payload, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ Invitation created for %s\n", *email)
		if link, ok := result["invitationLink"].(string); ok {
			fmt.Printf("  %s\n", link)
		}
	} else {
		fmt.Printf("✗ Invite failed: %v\n", result)
	}
}

func showInvite(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ridewatch invite show <token>")
		return
	}

	result, status, err := getJSON("/api/invites/"+args[0], false)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %v\n", result)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tSCHOOL\tSTATUS\tEXPIRES")
	fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", result["email"], result["school_id"], result["status"], result["expiresAt"])
	w.Flush()
}

func listInvites(args []string) {
	_ = args
	result, status, err := getJSON("/api/invites", true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %v\n", result)
		return
	}

	invitations, _ := result["invitations"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tSCHOOL\tSTATUS\tCREATED")
	for _, raw := range invitations {
		inv, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", inv["email"], inv["school_id"], inv["status"], inv["createdAt"])
	}
	w.Flush()
}

// School commands
func listSchools(args []string) {
	_ = args
	result, status, err := getJSON("/api/schools", true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %v\n", result)
		return
	}

	schools, _ := result["schools"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS")
	for _, raw := range schools {
		s, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\n", s["id"], s["name"], s["address"])
	}
	w.Flush()
}

func createSchool(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "school name")
	address := fs.String("address", "", "school address")

	fs.Parse(args)

	if *name == "" {
		fmt.Println("Error: name is required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"name": *name, "address": *address}
	result, status, err := postJSON("/api/schools", payload, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status == 201 {
		fmt.Printf("✓ School created: %s\n", *name)
	} else {
		fmt.Printf("✗ Create failed: %v\n", result)
	}
}

// Driver commands
func listDrivers(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	schoolID := fs.String("school", "", "school ID")

	fs.Parse(args)

	if *schoolID == "" {
		fmt.Println("Error: school is required")
		fs.PrintDefaults()
		return
	}

	result, status, err := getJSON("/api/schools/"+*schoolID+"/drivers", true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %v\n", result)
		return
	}

	drivers, _ := result["drivers"].([]interface{})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSTATUS")
	for _, raw := range drivers {
		d, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", d["id"], d["displayName"], d["email"], d["status"])
	}
	w.Flush()
}

// Helper functions
func postJSON(path string, payload interface{}, authed bool) (map[string]interface{}, int, error) {
	data, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", getAPIURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		addAuthHeader(req)
	}
	return doJSON(req)
}

func getJSON(path string, authed bool) (map[string]interface{}, int, error) {
	req, err := http.NewRequest("GET", getAPIURL()+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if authed {
		addAuthHeader(req)
	}
	return doJSON(req)
}

func doJSON(req *http.Request) (map[string]interface{}, int, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	return result, resp.StatusCode, nil
}

func getAPIURL() string {
	if url := os.Getenv("RIDEWATCH_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.ridewatch/token"
}

func saveToken(token string) error {
	os.MkdirAll(os.Getenv("HOME")+"/.ridewatch", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`RideWatch CLI

Usage:
  ridewatch <command> [options]

Commands:
  auth     Account authentication (register, verify, login, logout, who)
  invite   Driver invitations (create, show, list)
  school   School management (list, create)
  driver   Driver rosters (list)
  help     Show this help message

Environment Variables:
  RIDEWATCH_API    API endpoint (default: http://localhost:8080)

Examples:
  ridewatch auth register -email owner@example.com -name "Pat" -password secret123
  ridewatch auth verify -email owner@example.com -code 123456
  ridewatch invite create -email driver@example.com -school sch_123
  ridewatch driver list -school sch_123
`)
}
