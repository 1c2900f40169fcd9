// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/oriundostartup/libreta/internal/app/mirror"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Mirror        *mirror.Store
}
