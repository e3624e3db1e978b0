package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvakili/kashef/discovery"
	"github.com/nvakili/kashef/shared/id"
)

// chatCmd runs a local discovery session against an in-memory catalogue,
// useful for trying the dialogue flow without PostgreSQL.
func chatCmd() *cobra.Command {
	var offersPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive discovery session against an in-memory catalogue",
		Long: `Start an interactive discovery session.

Offers are served from an in-memory catalogue. Pass --offers with a JSON
file to use your own data; otherwise a small demo catalogue is loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			offers := demoOffers()
			if offersPath != "" {
				loaded, err := readOffersFile(offersPath)
				if err != nil {
					return err
				}
				offers = loaded
			}

			catalogue := discovery.NewMemoryCatalogue(offers)
			extractor := discovery.NewRuleExtractor(catalogue.Lexicon())
			states := discovery.NewStateStore(cfg.Discovery.StateTTL)
			coordinator := discovery.NewCoordinator(states, discovery.NewEngine(catalogue), extractor,
				discovery.WithTurnTimeout(cfg.Discovery.TurnTimeout),
			)

			conversationID := id.NewConversation()
			fmt.Printf("Catalogue: %d offers. Conversation: %s\n", len(offers), conversationID)
			fmt.Println("Describe what you are looking for. Type 'exit' or 'quit' to leave.")
			fmt.Println(strings.Repeat("-", 72))

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("You: ")
				if !scanner.Scan() {
					break
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "exit" || input == "quit" {
					break
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				resp, err := coordinator.HandleTurn(ctx, conversationID, input)
				cancel()
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}

				fmt.Printf("Kashef: %s\n", resp.Message)
				if resp.StopReason != "" {
					fmt.Printf("[conversation ended: %s]\n", resp.StopReason)
					return nil
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&offersPath, "offers", "", "path to a JSON file of offers")
	return cmd
}

func readOffersFile(path string) ([]discovery.Offer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read offers file: %w", err)
	}
	var offers []discovery.Offer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, fmt.Errorf("parse offers file: %w", err)
	}
	return offers, nil
}

func demoOffers() []discovery.Offer {
	return []discovery.Offer{
		{
			ID: "off-demo-1", ProductID: "prd-demo-1", ShopID: "shp-demo-1",
			ProductName: "Zanjan ZX-200 vacuum cleaner", Brand: "zanjan", Category: "appliances",
			City: "tehran", Price: 8_500_000, WarrantyMonths: 18, SellerScore: 4.6,
			Features: "bagless, 2000W, HEPA filter",
		},
		{
			ID: "off-demo-2", ProductID: "prd-demo-1", ShopID: "shp-demo-2",
			ProductName: "Zanjan ZX-200 vacuum cleaner", Brand: "zanjan", Category: "appliances",
			City: "mashhad", Price: 7_900_000, WarrantyMonths: 12, SellerScore: 4.1,
			Features: "bagless, 2000W",
		},
		{
			ID: "off-demo-3", ProductID: "prd-demo-2", ShopID: "shp-demo-1",
			ProductName: "Pars P-50 washing machine", Brand: "pars", Category: "appliances",
			City: "tehran", Price: 21_000_000, WarrantyMonths: 24, SellerScore: 4.6,
			Features: "8kg drum, inverter motor",
		},
		{
			ID: "off-demo-4", ProductID: "prd-demo-3", ShopID: "shp-demo-3",
			ProductName: "Aria A1 espresso maker", Brand: "aria", Category: "kitchen",
			City: "isfahan", Price: 5_400_000, WarrantyMonths: 6, SellerScore: 3.9,
			Features: "15 bar, milk frother",
		},
		{
			ID: "off-demo-5", ProductID: "prd-demo-3", ShopID: "shp-demo-2",
			ProductName: "Aria A1 espresso maker", Brand: "aria", Category: "kitchen",
			City: "tehran", Price: 5_650_000, WarrantyMonths: 12, SellerScore: 4.8,
			Features: "15 bar, milk frother, steel body",
		},
		{
			ID: "off-demo-6", ProductID: "prd-demo-4", ShopID: "shp-demo-4",
			ProductName: "Caspian C9 laptop", Brand: "caspian", Category: "electronics",
			City: "tabriz", Price: 64_000_000, WarrantyMonths: 18, SellerScore: 4.7,
			Features: "16GB RAM, 1TB SSD, OLED",
		},
	}
}
