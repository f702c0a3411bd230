package main

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/db"
	"github.com/xenking/skyshop/internal/catalogimport"
	"github.com/xenking/skyshop/internal/domain/auth"
	"github.com/xenking/skyshop/internal/storage/postgres"
)

// skyshopctl migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, pool, cleanup, err := boot(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return err
		}
		zctx.From(ctx).Info("Schema applied")
		return nil
	},
}

var (
	seedUsersFile    string
	seedProductsFile string
)

// skyshopctl seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users and aircraft listings (bundled defaults unless files are given)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, pool, cleanup, err := boot(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return err
		}
		if err := seedUsers(ctx, pool, seedUsersFile); err != nil {
			return err
		}
		return seedProducts(ctx, pool, seedProductsFile)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedUsersFile, "users", "", "JSON array of {name,email,role}")
	seedCmd.Flags().StringVar(&seedProductsFile, "products", "", "JSON array of listings")
}

// openSeed opens path, or the bundled file of the same name when path is empty.
func openSeed(path, bundled string) (io.ReadCloser, string, error) {
	if path == "" {
		f, err := db.Seed.Open("seed/" + bundled)
		if err != nil {
			return nil, "", errors.Wrapf(err, "open bundled %s", bundled)
		}
		return f, bundled, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "open seed file")
	}
	return f, path, nil
}

type seedUser struct {
	Name  string
	Email string
	Role  auth.Role
}

func decodeUsers(r io.Reader) ([]seedUser, error) {
	var users []seedUser
	err := jx.Decode(r, 1024).Arr(func(d *jx.Decoder) error {
		u := seedUser{Role: auth.RoleCustomer}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "name":
				v, err := d.Str()
				u.Name = v
				return err
			case "email":
				v, err := d.Str()
				u.Email = v
				return err
			case "role":
				v, err := d.Str()
				u.Role = auth.Role(v)
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if u.Email == "" {
			return errors.New("user email is required")
		}
		if u.Role != auth.RoleCustomer && u.Role != auth.RoleAdmin {
			return errors.Errorf("user %s: unknown role %q", u.Email, u.Role)
		}
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	return users, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, path string) error {
	f, name, err := openSeed(path, "users.json")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	users, err := decodeUsers(f)
	if err != nil {
		return err
	}
	repo := postgres.NewUserRepository(pool)
	lg := zctx.From(ctx)
	for _, u := range users {
		id, err := repo.Upsert(ctx, u.Name, u.Email, u.Role)
		if err != nil {
			return errors.Wrapf(err, "seed user %s", u.Email)
		}
		lg.Debug("User seeded", zap.Int64("user_id", id), zap.String("email", u.Email))
	}
	lg.Info("Users seeded", zap.String("source", name), zap.Int("count", len(users)))
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) error {
	f, name, err := openSeed(path, "products.json")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	im := catalogimport.New(postgres.NewProductRepository(pool), zctx.From(ctx))
	_, err = im.Import(ctx, catalogimport.JSONArray(name, f))
	return err
}
