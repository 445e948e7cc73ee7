package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Quick utility to generate a bcrypt hash for a dispatcher account
// Usage: go run scripts/hash_password.go <username> <password>
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run scripts/hash_password.go <username> <password>")
		fmt.Println("Example: go run scripts/hash_password.go dispatch1 0i2rinbcp12yc31h")
		os.Exit(1)
	}

	username, password := os.Args[1], os.Args[2]

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error generating hash: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Bcrypt Hash: %s\n", string(hashedPassword))
	fmt.Printf("\nTo update in MongoDB, run:\n")
	fmt.Printf("db.users.updateOne(\n")
	fmt.Printf("  {\"username\": \"%s\"},\n", username)
	fmt.Printf("  {$set: {\"password_hash\": \"%s\", \"is_active\": true}}\n", string(hashedPassword))
	fmt.Printf(")\n")
	fmt.Printf("\nTo update in SQLite, run:\n")
	fmt.Printf("UPDATE users SET password_hash = '%s', is_active = 1 WHERE username = '%s';\n", string(hashedPassword), username)
}
