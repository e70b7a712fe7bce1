package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/resourcekeep/keep/pkg/database"
	"github.com/resourcekeep/keep/pkg/security/access"
)

// rulesCmd dumps the rule set of a given resource
// NOTE: this is an operator tool; it reads the store directly and
// bypasses caller authorization
var rulesCmd = &cobra.Command{
	Use:   "rules <resource-id>",
	Short: "Dump the security rules of a resource.",
	Long:  ``,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resourceID, err := uuid.Parse(args[0])
		if err != nil {
			log.Fatal(err)
		}

		db, err := database.MySQLConnection()
		if err != nil {
			log.Fatal(err)
		}

		store, err := access.NewMySQLStore(db)
		if err != nil {
			log.Fatal(err)
		}

		rules, err := store.FetchRulesByResourceID(context.Background(), resourceID)
		if err != nil {
			log.Fatal(err)
		}

		payload, err := jsoniter.Marshal(rules)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(string(pretty.Pretty(payload)))
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
