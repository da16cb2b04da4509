package database_test

import entsql "entgo.io/ent/dialect/sql"

func entTable(name string) *entsql.SelectTable { return entsql.Table(name) }

func eq(col string, v any) *entsql.Predicate { return entsql.EQ(col, v) }
