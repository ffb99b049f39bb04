package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/itziklerner-pag/depthkeeper/api"
	"github.com/itziklerner-pag/depthkeeper/config"
	"github.com/itziklerner-pag/depthkeeper/domain"
	kafkapub "github.com/itziklerner-pag/depthkeeper/infrastructure/kafka"
	promclient "github.com/itziklerner-pag/depthkeeper/infrastructure/prometheus"
	"github.com/itziklerner-pag/depthkeeper/provider/binance"
	"github.com/itziklerner-pag/depthkeeper/usecase"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on the environment")
	}
	conf := config.Load()

	streamClient := binance.NewBinanceStreamClient(conf.BinanceWsEndpoint)
	if err := streamClient.Connect(); err != nil {
		log.Fatalf("failed to connect to binance stream: %s", err)
	}
	defer streamClient.Close()

	streamAPI := binance.NewBinanceStreamAPI(streamClient)
	syncAPI := binance.NewBinanceSyncAPI(conf.BinanceRestEndpoint)

	storage := domain.NewOrderBookStorage()
	snapshotUseCase := usecase.NewOrderBookSnapshotUseCase(storage, streamAPI, syncAPI, maintainerOptions(conf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher *kafkapub.Publisher
	if len(conf.KafkaBrokers) > 0 {
		publisher = kafkapub.NewPublisher(conf.KafkaBrokers, conf.KafkaTopic, conf.PublishDepth, conf.PublishMinInterval)
		defer publisher.Close()
	}

	for _, raw := range conf.Symbols {
		symbol, err := domain.NewMarketSymbolFromString(raw)
		if err != nil {
			log.Fatalf("invalid symbol %q: %s", raw, err)
		}
		if err := snapshotUseCase.Subscribe(symbol); err != nil {
			log.Fatalf("failed to subscribe %s: %s", symbol, err)
		}
		if publisher != nil {
			maintainer, err := storage.Get(symbol)
			if err != nil {
				log.Fatalf("maintainer for %s vanished: %s", symbol, err)
			}
			go publisher.Watch(ctx, maintainer)
		}
	}

	go promclient.StartPromClientServer(conf.MetricsAddr, storage)

	server := api.NewServer(snapshotUseCase, conf.MaxDepth)
	go func() {
		if err := server.ListenAndServe(conf.HTTPAddr); err != nil {
			log.Fatalf("http api failed: %s", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	cancel()
	// Stop each maintainer; Stop waits for the in-flight apply to finish
	// so no book is left with a torn write.
	storage.Each(func(_ string, m *domain.OrderbookMaintainer) {
		m.Stop()
	})
}

func maintainerOptions(conf *config.Config) domain.MaintainerOptions {
	opts := domain.DefaultMaintainerOptions()
	opts.MaxDepth = conf.MaxDepth
	opts.GapTolerance = conf.GapTolerance
	opts.MaxPending = conf.MaxPendingUpdates
	opts.MaxPendingAge = conf.MaxPendingAge
	opts.MailboxSize = conf.MailboxSize
	opts.DropOnFull = conf.DropOnFull
	opts.CrossedBookPolicy = domain.CrossedBookPolicy(conf.CrossedBookPolicy)
	opts.ResyncAttempts = conf.ResyncAttempts
	opts.ResyncBackoffMin = conf.ResyncBackoffMin
	opts.ResyncBackoffMax = conf.ResyncBackoffMax
	return opts
}
