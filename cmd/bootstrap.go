package cmd

import (
	"context"
	"log"
	"time"

	"github.com/allegro/bigcache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/resourcekeep/keep/pkg/database"
	"github.com/resourcekeep/keep/pkg/user"
	"github.com/resourcekeep/keep/pkg/util"
)

// bootstrapCmd creates the reserved everyone group and guest user
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize the reserved group and guest user.",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		db, err := database.MySQLConnection()
		if err != nil {
			log.Fatal(err)
		}

		store, err := user.NewMySQLStore(db)
		if err != nil {
			log.Fatal(err)
		}

		cache, err := user.NewDefaultCache(bigcache.DefaultConfig(10 * time.Minute))
		if err != nil {
			log.Fatal(err)
		}

		m, err := user.NewManager(store, cache)
		if err != nil {
			log.Fatal(err)
		}

		logger, err := util.DefaultLogger(viper.GetBool("debug"))
		if err != nil {
			log.Fatal(err)
		}

		if err = m.SetLogger(logger); err != nil {
			log.Fatal(err)
		}

		g, guest, err := m.Bootstrap(context.Background())
		if err != nil {
			log.Fatal(err)
		}

		log.Printf("created reserved group %q (%s) and user %q (%s)",
			g.Name, g.ID, guest.Username, guest.ID)
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}
