// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/ticker"

	"github.com/mwsuite/mwwallet/chain"
	"github.com/mwsuite/mwwallet/internal/prompt"
	"github.com/mwsuite/mwwallet/internal/zero"
	"github.com/mwsuite/mwwallet/mwconfig"
	"github.com/mwsuite/mwwallet/wallet"
)

const (
	// defaultRefreshInterval is how often the wallet reconciles its
	// ledger against the node while running.
	defaultRefreshInterval = time.Minute

	// defaultRefreshTimeout bounds a single reconciliation pass,
	// including all of its node queries.
	defaultRefreshTimeout = 5 * time.Minute
)

var cfg *config

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit.
	if err := walletMain(); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func walletMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s", version())

	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			log.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			log.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	// Read the optional node API secret and create the node client.
	apiSecret, err := mwconfig.ReadAPISecret(cfg.NodeAPISecretFile.Value)
	if err != nil {
		log.Errorf("Cannot read node API secret: %v", err)
		return err
	}
	node := chain.NewHTTPClient(cfg.NodeAPI.Value, apiSecret)

	// Open the wallet database.  The database is closed on shutdown,
	// after the refresh loop has drained.
	netDir := networkDir(cfg.AppDataDir.Value, activeNet)
	dbPath := filepath.Join(netDir, walletDbName)
	seedPath := filepath.Join(netDir, walletSeedName)

	db, err := openDB(cfg.DBType.Value, dbPath)
	if err != nil {
		log.Errorf("Cannot open wallet database: %v", err)
		return err
	}
	addInterruptHandler(func() {
		log.Info("Closing wallet database...")
		if err := db.Close(); err != nil {
			log.Errorf("Error closing wallet database: %v", err)
		}
	})

	// Unseal the master seed and open the wallet over the database.
	passphrase, err := prompt.ProvidePrivPassphrase()
	if err != nil {
		log.Errorf("Cannot read passphrase: %v", err)
		return err
	}
	w, err := wallet.OpenWallet(db, seedPath, passphrase, activeNet, node)
	zero.Bytes(passphrase)
	if err != nil {
		log.Errorf("Cannot open wallet: %v", err)
		return err
	}
	log.Infof("Opened wallet on %s, node API %s", activeNet.Name,
		cfg.NodeAPI.Value)

	// A failed node probe is not fatal; the wallet keeps serving local
	// state and reconciles once the node comes back.
	startupCtx, cancel := context.WithTimeout(context.Background(),
		30*time.Second)
	if tip, err := node.GetChainTip(startupCtx); err != nil {
		log.Warnf("Node is not reachable, continuing with local "+
			"data: %v", err)
	} else {
		info := node.GetVersionInfo(startupCtx)
		log.Infof("Connected to node version %s at height %d",
			info.NodeVersion, tip.Height)
	}
	cancel()

	// Periodically reconcile the ledger against the node.  The interrupt
	// handler below runs before the database close handler registered
	// above, so the loop is fully drained before the database goes away.
	var wg sync.WaitGroup
	quit := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		refreshLoop(w, quit)
	}()
	addInterruptHandler(func() {
		close(quit)
		wg.Wait()
	})

	<-interruptHandlersDone
	log.Info("Shutdown complete")
	return nil
}

// refreshLoop reconciles the wallet ledger against the node once at
// startup and then on every tick until quit is closed.
func refreshLoop(w *wallet.Wallet, quit <-chan struct{}) {
	refreshTicker := ticker.New(defaultRefreshInterval)
	refreshTicker.Resume()
	defer refreshTicker.Stop()

	refreshOnce(w)

	for {
		select {
		case <-refreshTicker.Ticks():
			refreshOnce(w)
		case <-quit:
			return
		}
	}
}

// refreshOnce runs a single reconciliation pass and logs the balance
// summary it produced.
func refreshOnce(w *wallet.Wallet) {
	ctx, cancel := context.WithTimeout(context.Background(),
		defaultRefreshTimeout)
	defer cancel()

	refreshed, summary, err := w.RetrieveSummaryInfo(ctx, true, cfg.MinConf)
	if err != nil {
		log.Errorf("Wallet refresh failed: %v", err)
		return
	}
	if !refreshed {
		log.Warnf("Ledger was not reconciled against the node; " +
			"balances may be stale")
	}
	log.Infof("Height %d: spendable %v, awaiting confirmation %v, "+
		"awaiting finalization %v, locked %v",
		summary.LastConfirmedHeight, summary.AmountCurrentlySpendable,
		summary.AmountAwaitingConfirmation,
		summary.AmountAwaitingFinalization, summary.AmountLocked)
}
