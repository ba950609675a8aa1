package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"blockcoder.app/internal/client/session"
	"blockcoder.app/internal/client/sync"
	"blockcoder.app/internal/game/catalog"
	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/game/tuning"
	"blockcoder.app/internal/persistence/local"
)

func main() {
	var (
		server     = flag.String("server", "http://localhost:8080", "server base url (empty for offline play)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data/client", "local data directory")
		username   = flag.String("username", "", "account username (empty for offline play)")
		password   = flag.String("password", "", "account password")
		doRegister = flag.Bool("register", false, "register the account before logging in")
		autoplay   = flag.Bool("autoplay", true, "buy and program blocks automatically")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found in %s; using defaults", *configDir)
	}

	cat, err := catalog.Load(filepath.Join(*configDir, "catalog.json"))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load catalog: %v", err)
		}
		cat = catalog.Default()
	}

	starter := state.Starter(tune.StarterCurrency, tune.StarterBlock)
	store := local.NewStore(filepath.Join(*dataDir, "state.snap.zst"))
	sess := session.New(cat, store, logger, starter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var coord *sync.Coordinator
	if *server != "" && *username != "" {
		coord = sync.New(*server, sess, tune.AutosyncChancePermille, logger)
		if *doRegister {
			if err := coord.Register(ctx, *username, *password); err != nil {
				logger.Fatalf("register: %v", err)
			}
			logger.Printf("registered %s", *username)
		}
		if err := coord.Login(ctx, *username, *password); err != nil {
			logger.Fatalf("login: %v", err)
		}
		logger.Printf("logged in as %s (server copy adopted)", coord.Username())
		go coord.RunInterval(ctx, time.Duration(tune.AutosyncIntervalMS)*time.Millisecond)
	} else {
		logger.Printf("offline mode; progress stays in %s", store.Path())
	}

	ticker := time.NewTicker(time.Duration(tune.TickMS) * time.Millisecond)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			if coord != nil {
				// Final manual save, surfaced unlike auto-sync.
				ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel2()
				if err := coord.Save(ctx2); err != nil {
					logger.Printf("final save failed: %v", err)
				} else {
					logger.Printf("final save ok")
				}
			}
			return
		case <-ticker.C:
			tick++
			sess.Tick(time.Now())
			if *autoplay {
				autoplayStep(sess, tick, logger)
			}
			if coord != nil {
				coord.MaybeAutoSync(ctx)
			}
			if tick%30 == 0 {
				st := sess.State()
				logger.Printf("tick=%d currency=%d per_tick=%d program=%d",
					tick, int(st.Currency), int(sess.ProjectedPerTick()), len(st.Program))
			}
		}
	}
}

// autoplayStep buys the priciest affordable block every few ticks and wires
// additives straight into the program. Multipliers go to the end, where they
// compound everything accumulated before them.
func autoplayStep(sess *session.Session, tick uint64, logger *log.Logger) {
	if tick%5 != 0 {
		return
	}
	st := sess.State()
	cat := sess.Catalog()

	best := ""
	bestPrice := -1
	for _, id := range cat.Order {
		def, _ := cat.Lookup(id)
		if float64(def.Price) <= st.Currency && def.Price > bestPrice {
			best, bestPrice = id, def.Price
		}
	}
	if best == "" {
		return
	}
	if err := sess.Purchase(best); err != nil {
		return
	}
	def, _ := cat.Lookup(best)
	switch def.Behavior {
	case catalog.BehaviorAdditive:
		_ = sess.AppendToProgram(best)
	case catalog.BehaviorMultiplier:
		// One trailing multiplier is enough; more of the same id still helps,
		// so append each copy we buy.
		_ = sess.AppendToProgram(best)
	}
	logger.Printf("bought %s for %d", best, def.Price)
}
