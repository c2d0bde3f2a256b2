package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/mickamy/docmap/example/model"
	"github.com/mickamy/docmap/example/repo"
	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
	"github.com/mickamy/docmap/store/memory"
	"github.com/mickamy/docmap/store/sqldoc"
)

func main() {
	driver := flag.String("driver", "memory", "store driver (memory or sqlite)")
	dsn := flag.String("dsn", "file::memory:", "sqlite data source")
	debug := flag.Bool("debug", false, "log every store round trip")
	flag.Parse()

	ctx := context.Background()

	schema, err := model.Schema()
	if err != nil {
		log.Fatalf("schema: %v", err)
	}
	db := odm.New(openStore(*driver, *dsn), schema)
	defer func() { _ = db.Close() }()
	if *debug {
		db = db.Debug(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := db.EnsureCollections(ctx); err != nil {
		log.Fatalf("ensure collections: %v", err)
	}

	accounts := repo.NewAccountRepository(db)

	// BUILD
	fmt.Println("--- BUILD (unsaved account) ---")
	acme, err := accounts.New("acme", "dcu", "jnunemaker")
	if err != nil {
		log.Fatalf("new account: %v", err)
	}
	n, err := accounts.CountUsers(ctx, acme)
	if err != nil {
		log.Fatalf("count unsaved: %v", err)
	}
	fmt.Printf("Unsaved account counts %d users; memberships wait for the account.\n", n)

	// SAVE
	fmt.Println("\n--- SAVE ---")
	if err := acme.Save(ctx); err != nil {
		log.Fatalf("save account: %v", err)
	}
	fmt.Printf("Saved account %s\n", acme.ID())
	users, err := accounts.Users(ctx, acme)
	if err != nil {
		log.Fatalf("users: %v", err)
	}
	for _, u := range users {
		fmt.Printf("  %s %s\n", u.ID(), u.String("login"))
	}

	// COUNT
	fmt.Println("\n--- COUNT ---")
	n, err = accounts.CountUsers(ctx, acme, scope.Where("login", "dcu"))
	if err != nil {
		log.Fatalf("count by login: %v", err)
	}
	fmt.Printf("Users with login dcu: %d\n", n)

	// APPEND
	fmt.Println("\n--- APPEND ---")
	other, err := accounts.New("globex")
	if err != nil {
		log.Fatalf("new account: %v", err)
	}
	if err := other.Save(ctx); err != nil {
		log.Fatalf("save account: %v", err)
	}
	if err := accounts.AddUser(ctx, other, users[0]); err != nil {
		log.Fatalf("append user: %v", err)
	}
	accountsOfUser, err := users[0].Many("accounts")
	if err != nil {
		log.Fatalf("accounts: %v", err)
	}
	n, err = accountsOfUser.Count(ctx)
	if err != nil {
		log.Fatalf("count accounts: %v", err)
	}
	fmt.Printf("%s now belongs to %d accounts\n", users[0].String("login"), n)

	// PAGINATE
	fmt.Println("\n--- PAGINATE ---")
	page, err := accounts.PageUsers(ctx, acme, 1, 1)
	if err != nil {
		log.Fatalf("paginate: %v", err)
	}
	fmt.Printf("Page %d of %d (%d users): %s\n", page.Number, page.TotalPages, page.TotalEntries, page.Items[0].String("login"))

	// DIRECT
	fmt.Println("\n--- DIRECT ---")
	project, err := accounts.CreateProject(ctx, acme, "launch")
	if err != nil {
		log.Fatalf("create project: %v", err)
	}
	fmt.Printf("Project %s has account_id=%s\n", project.String("title"), project.String("account_id"))

	// RELOAD
	fmt.Println("\n--- RELOAD ---")
	found, err := accounts.FindByID(ctx, acme.ID())
	if err != nil {
		log.Fatalf("find account: %v", err)
	}
	n, err = accounts.CountUsers(ctx, found)
	if err != nil {
		log.Fatalf("count reloaded: %v", err)
	}
	fmt.Printf("Reloaded %s has %d users\n", found.String("name"), n)
}

func openStore(driver, dsn string) odm.Store {
	switch driver {
	case "memory":
		return memory.New()
	case "sqlite":
		db, err := sqldoc.Open("sqlite", dsn)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		return sqldoc.NewStore(db)
	default:
		log.Fatalf("unsupported driver: %s", driver)
		return nil
	}
}
