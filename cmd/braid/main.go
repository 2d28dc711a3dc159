// Command braid runs the session-aware chat pipeline interactively or as an
// HTTP server, and administers stored sessions.
package main

func main() {
	Execute()
}
