package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/mecarvi/siteadmin/internal/config"
	"github.com/mecarvi/siteadmin/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("配置加载失败:", err)
	}

	username := flag.String("username", cfg.SuperRootUserName, "管理员用户名")
	password := flag.String("password", cfg.SuperRootPassword, "管理员密码")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("用户名和密码不能为空，可通过 -username/-password 或 SUPER_ROOT_USER_NAME/SUPER_ROOT_PASSWORD 提供")
	}

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	if err := db.EnsureUser(db.DB, *username, *password); err != nil {
		log.Fatal("创建用户失败:", err)
	}

	fmt.Printf("管理员用户已就绪: %s\n", *username)
}
