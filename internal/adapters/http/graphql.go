package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	addressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Address",
		Fields: graphql.Fields{
			"countryCode": &graphql.Field{Type: graphql.String},
			"country":     &graphql.Field{Type: graphql.String},
			"state":       &graphql.Field{Type: graphql.String},
			"city":        &graphql.Field{Type: graphql.String},
		},
	})

	boundaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Boundary",
		Fields: graphql.Fields{
			"admin_level": &graphql.Field{Type: graphql.Int},
			"name":        &graphql.Field{Type: graphql.String},
		},
	})

	classificationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Classification",
		Fields: graphql.Fields{
			"cc":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"admin1":      &graphql.Field{Type: graphql.String},
			"admin2":      &graphql.Field{Type: graphql.String},
			"distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	recordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Record",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"coordinates": &graphql.Field{Type: coordinateType},
			"address":     &graphql.Field{Type: addressType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"resolve": &graphql.Field{
				Type:        addressType,
				Description: "Resolve a coordinate to its administrative address",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					coord := domain.Coordinate{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					if !coord.Valid() {
						return nil, errors.New("coordinate out of range")
					}
					return deps.Resolver.Resolve(p.Context, coord), nil
				},
			},
			"boundaries": &graphql.Field{
				Type:        graphql.NewList(boundaryType),
				Description: "Boundary polygons containing a point, by admin level",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Boundaries == nil {
						return nil, errors.New("boundary store not available")
					}
					coord := domain.Coordinate{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					if !coord.Valid() {
						return nil, errors.New("coordinate out of range")
					}
					return deps.Boundaries.FindContaining(p.Context, coord)
				},
			},
			"classify": &graphql.Field{
				Type:        classificationType,
				Description: "Nearest known place via the offline fallback classifier",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Classifier == nil {
						return nil, errors.New("classifier not available")
					}
					coord := domain.Coordinate{
						Lat: p.Args["lat"].(float64),
						Lon: p.Args["lon"].(float64),
					}
					if !coord.Valid() {
						return nil, errors.New("coordinate out of range")
					}
					cls, err := deps.Classifier.Classify(p.Context, coord)
					if errors.Is(err, ports.ErrNoMatch) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return cls, nil
				},
			},
			"record": &graphql.Field{
				Type:        recordType,
				Description: "A resolved record from the loaded checkpoint",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					rec, ok := deps.Records[id]
					if !ok {
						return nil, nil
					}
					return recordResponse{
						ID:          id,
						Name:        rec.Name,
						Coordinates: rec.Coordinate,
						Address:     rec.Address,
					}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
